// Gray Logic Field Node - device runtime for sensors and actuators
//
// This is the main entry point for the field node. The node drives a small
// set of field devices attached to one host:
//   - Periodic sensors (temperature/humidity, soil moisture)
//   - Bistable actuators (pump relay)
//
// Each device loops acquire/actuate → persist → publish → sleep, and accepts
// interval changes over MQTT. Readings are kept in a local SQLite database
// and optionally mirrored to InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-fieldnode/migrations"

	"github.com/nerrad567/gray-logic-fieldnode/internal/device"
	"github.com/nerrad567/gray-logic-fieldnode/internal/hardware"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fieldnode/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fieldnode/internal/store"
	"github.com/nerrad567/gray-logic-fieldnode/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// defaultDumpLimit is the number of rows printed by -dump.
const defaultDumpLimit = 20

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the command line flags.
type options struct {
	configPath string
	debug      bool
	dump       string
	dumpLimit  int
}

// parseFlags parses args. The config path defaults to FIELDNODE_CONFIG,
// then configs/config.yaml.
func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("fieldnode", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.debug, "debug", false, "force debug logging")
	fs.StringVar(&opts.dump, "dump", "", "print the latest telemetry of a device and exit")
	fs.IntVar(&opts.dumpLimit, "n", defaultDumpLimit, "number of rows printed by -dump")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination of -dump output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Field Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.configPath,
		"node_id", cfg.Node.ID,
		"devices", len(cfg.Devices),
		"level", cfg.Logging.Level,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, _, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations", len(applied))

	readings := telemetry.NewSQLiteSink(db)
	if opts.dump != "" {
		return dump(ctx, readings, opts.dump, opts.dumpLimit, stdout)
	}

	settings, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	log.Info("settings store loaded", "path", settings.Path(), "keys", len(settings.Keys()))

	// Connect to InfluxDB (optional)
	var sink telemetry.Sink = readings
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Node.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		fanout := telemetry.NewFanout(readings, telemetry.NewInfluxMirror(influxClient))
		fanout.SetLogger(log.With("component", "telemetry"))
		sink = fanout
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT broker; every device shares this connection
	session := mqtt.NewSession(cfg.MQTT, cfg.Node.ID, log.With("component", "mqtt"))
	mqttClient, err := session.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := session.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", session.ClientID(),
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	drivers := hardware.NewDrivers()
	drivers.SetLogger(log.With("component", "hardware"))
	defer func() {
		if closeErr := drivers.Close(); closeErr != nil {
			log.Error("error closing serial ports", "error", closeErr)
		}
	}()

	supervisor, err := buildSupervisor(cfg, settings, drivers, mqtt.NewChannel(mqttClient), sink, log)
	if err != nil {
		return err
	}
	log.Info("devices ready", "count", supervisor.Len(), "serial_ports", drivers.Ports())

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Blocks until the shutdown signal; every device finishes its
	// current step before the deferred closes run.
	if err := supervisor.Run(ctx); err != nil {
		return fmt.Errorf("running devices: %w", err)
	}

	log.Info("Gray Logic Field Node stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIELDNODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIELDNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildSupervisor creates one runtime per configured device.
func buildSupervisor(cfg *config.Config, settings *store.Store, drivers *hardware.Drivers,
	channel device.CommandChannel, sink telemetry.Sink, log *logging.Logger,
) (*device.Supervisor, error) {
	supervisor := device.NewSupervisor()
	supervisor.SetLogger(log.With("component", "supervisor"))

	for _, dc := range cfg.Devices {
		dev, err := buildDevice(dc, settings, drivers)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dc.ID, err)
		}

		rt := device.NewRuntime(dev, channel, sink, settings)
		rt.SetLogger(log.With("component", "device", "profile", dc.Profile))
		supervisor.Add(rt)

		log.Info("device configured",
			"device_id", dc.ID,
			"profile", dc.Profile,
			"driver", dc.Driver,
			"attrs_topic", dev.Identity().AttrsTopic,
		)
	}
	return supervisor, nil
}

// buildDevice creates the device and its hardware driver from the
// configuration entry and the stored settings.
func buildDevice(dc config.DeviceConfig, settings *store.Store, drivers *hardware.Drivers) (device.Device, error) {
	id, err := device.NewIdentity(dc.ID, dc.Key)
	if err != nil {
		return nil, err
	}
	wiring, err := hardware.LoadSettings(settings, dc.ID, dc.Profile)
	if err != nil {
		return nil, err
	}

	if dc.Profile == config.ProfilePump {
		relay, err := drivers.Actuator(dc, wiring)
		if err != nil {
			return nil, err
		}
		return device.NewPumpActuator(id, relay, settings)
	}

	probe, err := drivers.Sensor(dc, wiring)
	if err != nil {
		return nil, err
	}
	if dc.Profile == config.ProfileMoisture {
		return device.NewMoistureSensor(id, probe, settings)
	}
	return device.NewClimateSensor(id, probe, settings)
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// dump prints the latest rows of a device table as JSON lines, newest first.
func dump(ctx context.Context, readings *telemetry.SQLiteSink, deviceID string, limit int, w io.Writer) error {
	records, err := readings.Recent(ctx, deviceID, limit)
	if errors.Is(err, telemetry.ErrUnknownDevice) {
		known, listErr := readings.Devices(ctx)
		if listErr == nil {
			return fmt.Errorf("reading telemetry of %s: %w (known devices: %v)", deviceID, err, known)
		}
	}
	if err != nil {
		return fmt.Errorf("reading telemetry of %s: %w", deviceID, err)
	}

	enc := json.NewEncoder(w)
	for _, rec := range records {
		line := map[string]any{
			"id":        rec.ID,
			"timestamp": rec.Timestamp.UTC(),
		}
		for k, v := range rec.Values {
			line[k] = v
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
