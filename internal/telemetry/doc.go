// Package telemetry records device readings.
//
// The primary sink is a table per device in the node's SQLite database.
// Table and column names come from configuration, so every identifier is
// checked against a strict pattern and double-quoted; values are always
// bound parameters. Optional mirrors (InfluxDB) receive a copy of each row
// through Fanout.
package telemetry
