// spimrig - light-sheet microscope rig controller
//
// This is the main entry point. It composes the rig from the configured
// backend, journals every rig event to SQLite, and exposes the rig over a
// REST/WebSocket API and, optionally, an MQTT command bridge. Prometheus
// metrics are always served; InfluxDB telemetry is optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/spimrig/internal/api"
	"github.com/nerrad567/spimrig/internal/backend/sim"
	"github.com/nerrad567/spimrig/internal/bridge"
	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/history"
	"github.com/nerrad567/spimrig/internal/infrastructure/config"
	"github.com/nerrad567/spimrig/internal/infrastructure/database"
	"github.com/nerrad567/spimrig/internal/infrastructure/influxdb"
	"github.com/nerrad567/spimrig/internal/infrastructure/logging"
	"github.com/nerrad567/spimrig/internal/infrastructure/mqtt"
	"github.com/nerrad567/spimrig/internal/setup"
	"github.com/nerrad567/spimrig/internal/telemetry"
	"github.com/nerrad567/spimrig/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting spimrig",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		Migrations:  migrations.FS,
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	metrics := telemetry.NewMetrics()
	rig, sink := buildRig(cfg, log, metrics, influxClient)

	historyRepo := history.NewSQLiteRepository(db.DB)
	rig.Subscribe(history.NewRecorder(historyRepo, log.Component("history")))
	rig.Subscribe(metrics)
	if influxClient != nil {
		rig.Subscribe(sink)
	}

	caps := rig.Capabilities()
	log.Info("rig composed",
		"bound_slots", len(rig.Bound()),
		"minimal_microscope", caps.Minimal,
		"minimal_spim", caps.SPIM,
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var mqttBridge *bridge.Bridge
		mqttClient, mqttBridge, err = startMQTT(ctx, cfg, rig, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Rig:     rig,
		History: historyRepo,
		Metrics: metrics.Handler(),
		DB:      db,
		Version: version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}

	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, MQTT bridge and client,
	// InfluxDB, database.
	return nil
}

// buildRig creates the simulated backend, the device registry and the
// composed rig. Backend failures go to the log, the metrics and, when
// connected, InfluxDB. The returned sink is nil without InfluxDB.
func buildRig(cfg *config.Config, log *logging.Logger, metrics *telemetry.Metrics, influxClient *influxdb.Client) (*setup.Setup, *telemetry.InfluxSink) {
	backend := simBackend(cfg)

	sinks := device.MultiSink{device.LogSink{Logger: log.Component("device")}, metrics}
	var influxSink *telemetry.InfluxSink
	if influxClient != nil {
		influxSink = telemetry.NewInfluxSink(influxClient)
		sinks = append(sinks, influxSink)
	}

	registry := device.MustNewRegistry(backend, device.DefaultFactories(),
		device.WithFailureSink(sinks),
		device.WithWaitTimeout(cfg.GetWaitTimeout()),
		device.WithLogger(log.Component("registry")),
	)

	discovery := setup.NewBackendDiscovery(backend, setup.Defaults{
		XYStage: cfg.Rig.Devices.XYStage,
		Focus:   cfg.Rig.Devices.Focus,
		Shutter: cfg.Rig.Devices.Shutter,
		Camera:  cfg.Rig.Devices.Camera,
		Slots:   cfg.SlotLabels(),
	}, sinks)

	rig := setup.NewDefault(registry, discovery,
		setup.WithOriginMoveProtection(cfg.Rig.OriginMoveProtection),
		setup.WithLogger(log.Component("setup")),
	)
	return rig, influxSink
}

// simBackend creates the simulated demo rig from the simulation settings.
func simBackend(cfg *config.Config) *sim.Backend {
	s := cfg.Rig.Simulation
	opts := []sim.Option{
		sim.WithAutoShutter(s.AutoShutter),
		sim.WithMoveTime(cfg.GetMoveTime()),
	}
	if s.FrameWidth > 0 && s.FrameHeight > 0 {
		opts = append(opts, sim.WithFrameSize(s.FrameWidth, s.FrameHeight))
	}
	return sim.New(sim.DemoDevices(), opts...)
}

// startMQTT connects to the broker, starts the command bridge and
// subscribes it to rig events.
//
// Parameters:
//   - ctx: Context for the bridge lifetime
//   - cfg: Application configuration
//   - rig: Composed rig the bridge drives
//   - log: Logger instance
//
// Returns:
//   - *mqtt.Client: Connected client
//   - *bridge.Bridge: Running bridge; stop it before closing the client
//   - error: If the broker is unreachable or the bridge fails to start
func startMQTT(ctx context.Context, cfg *config.Config, rig *setup.Setup, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// #nosec G115 -- qos validated to 0..2 by config.Validate
	b, err := bridge.NewBridge(bridge.Options{
		Rig:        rig,
		MQTTClient: client,
		Topics:     client.Topics(),
		QoS:        byte(cfg.MQTT.QoS),
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	rig.Subscribe(b)

	log.Info("MQTT bridge started", "commands", client.Topics().AllCommands())
	return client, b, nil
}

// getConfigPath returns the configuration file path.
// Uses SPIMRIG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SPIMRIG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
