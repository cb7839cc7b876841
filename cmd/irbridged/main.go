// IR Bridge Core
//
// This is the main entry point for the IR Bridge core daemon. It keeps
// the registry of bridge devices and their learned remotes, dispatches
// IR commands to devices over WebSocket or MQTT, correlates device
// acknowledgements back to whoever asked, and runs scheduled
// multi-step automations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/irbridge/core/migrations"

	"github.com/irbridge/core/internal/api"
	"github.com/irbridge/core/internal/automation"
	"github.com/irbridge/core/internal/bridges/mqttbridge"
	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/dispatch"
	"github.com/irbridge/core/internal/infrastructure/config"
	"github.com/irbridge/core/internal/infrastructure/database"
	"github.com/irbridge/core/internal/infrastructure/influxdb"
	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/infrastructure/mqtt"
	"github.com/irbridge/core/internal/remote"
	"github.com/irbridge/core/internal/requestpool"
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

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting IR Bridge core",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)
	remoteRepo := remote.NewSQLiteRepository(db.DB)
	automationRepo := automation.NewSQLiteRepository(db.DB)
	requestPool := requestpool.NewSQLiteRepository(db.DB)

	// Connection handles die with the process that minted them, so any
	// rows surviving a restart point at channels that no longer exist.
	if err := deviceRepo.ClearAllConnections(ctx); err != nil {
		return fmt.Errorf("clearing stale connections: %w", err)
	}

	// Connect to InfluxDB (optional usage telemetry)
	var recorder dispatch.UsageRecorder
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorder = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Dispatch engine. The mux routes pushes to whichever transport
	// minted the device's connection handle.
	channels := dispatch.NewChannelMux()
	dispatcher := dispatch.NewDispatcher(
		requestPool, remoteRepo, deviceRepo, channels, recorder,
		cfg.Dispatch.RequestExpiry(), log,
	)

	// A run whose acknowledgement is older than the request expiry can
	// never resolve, so the same window bounds automation staleness.
	engine := automation.NewEngine(automationRepo, dispatcher, requestPool, cfg.Dispatch.RequestExpiry(), log)
	ackRouter := dispatch.NewAckRouter(requestPool, remoteRepo, channels, engine, recorder, log)

	scheduler := automation.NewScheduler(engine, automationRepo, cfg.Scheduler.Tick(), log)
	go scheduler.Run(ctx)
	log.Info("automation scheduler started", "tick", cfg.Scheduler.Tick())

	// Connect to MQTT broker (optional transport for bridge devices)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge := mqttbridge.New(mqttClient, deviceRepo, ackRouter, byte(cfg.MQTT.QoS), log)
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		channels.Register(mqttbridge.HandlePrefix, bridge)
	} else {
		log.Info("MQTT disabled")
	}

	// API server; its WebSocket hub is the primary push transport.
	server, err := api.New(api.Deps{
		Config:      cfg.Server,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Devices:     deviceRepo,
		Remotes:     remoteRepo,
		Automations: automationRepo,
		Dispatcher:  dispatcher,
		AckRouter:   ackRouter,
		Engine:      engine,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	channels.Register(api.HandlePrefix, server.Hub())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.Server.Host, "port", cfg.Server.Port)

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	// Deferred Close() calls run in reverse order:
	// API server, MQTT (if enabled), InfluxDB (if enabled), database.

	log.Info("IR Bridge core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses the IRBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IRBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
