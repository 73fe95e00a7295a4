// Package influxdb provides InfluxDB connectivity for mirroring field node
// telemetry to a central time-series store.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. The
// local SQLite tables stay the source of truth; InfluxDB is optional and
// enabled with influxdb.enabled in config.yaml.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Node.ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("dht22_01", "climate",
//	    map[string]any{"temperature": 21.5, "humidity": 40.0}, time.Now())
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// callback set with SetOnError. Connection and health check errors are
// returned directly.
package influxdb
