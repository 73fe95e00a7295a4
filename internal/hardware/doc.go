// Package hardware provides the drivers behind device sensors and actuators.
//
// Two drivers are available per device:
//   - sim: simulated climate and moisture probes and a logging relay, for
//     development without hardware attached
//   - serial: a probe board on a serial port speaking a line protocol
//
// The serial protocol is one request line, one response line:
//
//	READ <pin> <gain>   →  temperature=21.5 humidity=40.2
//	SET <pin> ON|OFF    →  OK
//	(any request)       →  ERR <reason>
//
// Pins and gains come from the settings store ({id}_PIN, {id}_GAIN) so
// that they survive restarts alongside the device intervals.
package hardware
