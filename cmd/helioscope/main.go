// Helioscope - Remote Solar Observatory Core
//
// This is the main entry point for the Helioscope application. It
// connects the INDIGO device server, the dome/etalon servo board, and
// the MQTT broker, then runs the mount controller, focuser, solar
// tracker, and closed-loop autoguider until shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/altair-obs/helioscope/migrations"

	"github.com/altair-obs/helioscope/internal/actuator"
	"github.com/altair-obs/helioscope/internal/commands"
	"github.com/altair-obs/helioscope/internal/focuser"
	"github.com/altair-obs/helioscope/internal/guider"
	"github.com/altair-obs/helioscope/internal/history"
	"github.com/altair-obs/helioscope/internal/indigo"
	"github.com/altair-obs/helioscope/internal/infrastructure/config"
	"github.com/altair-obs/helioscope/internal/infrastructure/database"
	"github.com/altair-obs/helioscope/internal/infrastructure/influxdb"
	"github.com/altair-obs/helioscope/internal/infrastructure/logging"
	"github.com/altair-obs/helioscope/internal/infrastructure/mqtt"
	"github.com/altair-obs/helioscope/internal/mount"
	"github.com/altair-obs/helioscope/internal/sink"
	"github.com/altair-obs/helioscope/internal/tracker"
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

// historyRetention is how long recorded events are kept in SQLite.
const historyRetention = 7 * 24 * time.Hour

// historyPruneInterval is how often old events are deleted.
const historyPruneInterval = 6 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Load .env if present; environment overrides are applied during
	// config.Load. Missing files are fine.
	_ = godotenv.Load()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Helioscope",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Event history
	historyRepo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(historyRepo, log)
	go pruneLoop(ctx, historyRepo, log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Compose the event fan-out: broker, local history, telemetry.
	events := sink.Fanout{
		sink.NewMQTTSink(mqttClient, byte(cfg.MQTT.QoS), log), // #nosec G115 -- QoS validated 0-2
		recorder,
	}
	if influxClient != nil {
		events = append(events, &telemetrySink{client: influxClient})
	}

	// Connect to the INDIGO device server
	indigoClient := indigo.NewClient(indigo.Config{
		Address:        cfg.Indigo.Address(),
		MaxRetries:     cfg.Indigo.MaxRetries,
		RetryInterval:  cfg.Indigo.GetRetryInterval(),
		ConnectTimeout: cfg.Indigo.GetConnectTimeout(),
	})
	indigoClient.SetLogger(log)
	if err := indigoClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to device server: %w", err)
	}
	log.Info("device server connected", "address", cfg.Indigo.Address())

	// Mount controller
	mountCtl := mount.NewController(indigoClient, events, mount.ControllerConfig{
		Device:       cfg.Indigo.MountDevice,
		PollInterval: cfg.Mount.GetPollInterval(),
	})
	mountCtl.SetLogger(log)
	defer func() {
		log.Info("shutting down mount controller")
		mountCtl.Shutdown()
	}()

	mountCtl.SetLocation(cfg.Site.Latitude, cfg.Site.Longitude, cfg.Site.Elevation)
	mountCtl.StartMonitor()
	log.Info("mount controller started", "device", cfg.Indigo.MountDevice)

	// Focuser shares the INDIGO connection. The client keeps one
	// handler per message kind, so number vectors fan out to both the
	// mount and the focuser from here.
	foc := focuser.New(indigoClient, events, cfg.Indigo.FocuserDevice)
	foc.SetLogger(log)
	indigoClient.On(indigo.TagSetNumberVector, func(v indigo.PropertyVector) {
		mountCtl.HandleNumberVector(v)
		foc.HandleNumberVector(v)
	})

	// Dome/etalon servo board
	boardClient := actuator.NewClient(actuator.ClientConfig{
		Address:        cfg.Actuator.Address(),
		ConnectTimeout: cfg.Actuator.GetConnectTimeout(),
		IdleTimeout:    cfg.Actuator.GetIdleTimeout(),
		WatchInterval:  cfg.Actuator.GetWatchInterval(),
		MaxFailures:    cfg.Actuator.MaxFailures,
		LogInterval:    cfg.Actuator.GetLogInterval(),
	})
	boardClient.SetLogger(log)

	board := actuator.NewBoard(boardClient, events,
		cfg.Actuator.GetPollInterval(), cfg.Actuator.GetRetryDelay())
	board.SetLogger(log)
	defer func() {
		log.Info("shutting down actuator board")
		board.Shutdown()
	}()
	board.StartMonitor()
	log.Info("actuator board monitor started", "address", cfg.Actuator.Address())

	// Autoguider (started on demand via command)
	g := guider.New(mountCtl, events, guider.Config{
		URL:            cfg.Guider.URL,
		FetchTimeout:   cfg.Guider.GetFetchTimeout(),
		TargetFPS:      cfg.Guider.TargetFPS,
		DownscaleWidth: cfg.Guider.DownscaleWidth,
		BlurSize:       cfg.Guider.BlurSize,
		MinArea:        cfg.Guider.MinArea,
		LockRadius:     cfg.Guider.LockRadius,
		LockHoldFrames: cfg.Guider.LockHoldFrames,
		Deadband:       cfg.Guider.Deadband,
		GainMsPerPx:    cfg.Guider.GainMsPerPx,
		MinPulseMs:     cfg.Guider.MinPulseMs,
		MaxPulseMs:     cfg.Guider.MaxPulseMs,
		AxisInterval:   cfg.Guider.GetAxisInterval(),
		JPEGQuality:    cfg.Guider.JPEGQuality,
		FlipRA:         cfg.Guider.FlipRA,
		FlipDec:        cfg.Guider.FlipDec,
	})
	g.SetLogger(log)
	defer g.Stop()

	// Solar tracker
	source := &tracker.SolarSource{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
	}
	trk := tracker.New(mountCtl, source, events, cfg.Tracker.GetInterval())
	trk.SetLogger(log)
	defer trk.Stop()
	if cfg.Tracker.Enabled {
		trk.Start()
		log.Info("solar tracker started", "interval", cfg.Tracker.GetInterval())
	}

	// Command intake from the broker
	dispatcher := commands.New(mountCtl, board, foc, g, trk, log)
	commandTopic := mqtt.Topics{}.AllCommands()
	// #nosec G115 -- QoS validated 0-2
	if err := mqttClient.Subscribe(commandTopic, byte(cfg.MQTT.QoS), dispatcher.Handle); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	log.Info("command intake subscribed", "topic", commandTopic)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Tracker and guider loops stop
	// 2. Actuator board shuts down
	// 3. Mount controller shuts down (stops motion, closes INDIGO)
	// 4. InfluxDB (if enabled), MQTT, database close

	log.Info("Helioscope stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HELIOSCOPE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HELIOSCOPE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// pruneLoop periodically deletes old event history rows.
func pruneLoop(ctx context.Context, repo history.Repository, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.Prune(ctx, historyRetention)
			if err != nil {
				log.Warn("event history prune failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("event history pruned", "deleted", deleted)
			}
		}
	}
}

// telemetrySink forwards selected events to InfluxDB. It sits in the
// same fan-out as the MQTT sink, translating event payloads into
// measurement writes.
type telemetrySink struct {
	client *influxdb.Client
}

// Publish implements the event sink interface.
func (s *telemetrySink) Publish(event string, payload any) {
	switch event {
	case "mount_coordinates":
		coords, ok := payload.(mount.Coordinates)
		if !ok || coords.RA == nil || coords.Dec == nil {
			return
		}
		s.client.WriteMountCoordinates("mount", *coords.RA, *coords.Dec)
	case "guiding_status":
		status, ok := payload.(guider.Status)
		if !ok || status.DX == nil || status.DY == nil || status.R == nil {
			return
		}
		s.client.WriteGuideError(status.Session, *status.DX, *status.DY, *status.R, status.Locked)
	case "actuator_state":
		state, ok := payload.(actuator.State)
		if !ok {
			return
		}
		s.client.WriteActuatorState(state.DomeRaw, state.Etalon1, state.Etalon2)
	case "guide_pulse":
		pulse, ok := payload.(guider.Pulse)
		if !ok {
			return
		}
		s.client.WritePulse(pulse.Session, pulse.Direction, pulse.DurationMs)
	}
}
