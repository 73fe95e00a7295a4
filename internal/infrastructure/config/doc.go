// Package config handles loading and validating field node configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and device entries
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Device ids and keys are restricted to topic- and SQL-safe characters
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range cfg.Devices {
//	    fmt.Println(d.ID, d.Profile)
//	}
//
// Per-device runtime settings (intervals, pins, actuator status) do not live
// here: they are kept in the KEY=VALUE store so that remote commands can
// change them and survive restarts.
package config
