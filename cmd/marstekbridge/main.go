// Marstek Cloud Bridge
//
// Polls the Marstek vendor cloud for home-battery telemetry and fans it
// out to local consumers: retained MQTT state topics, an HTTP/JSON API,
// Prometheus metrics and (optionally) InfluxDB history.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "marstek-bridge/migrations"

	"marstek-bridge/internal/api"
	"marstek-bridge/internal/infrastructure/config"
	"marstek-bridge/internal/infrastructure/database"
	"marstek-bridge/internal/infrastructure/influxdb"
	"marstek-bridge/internal/infrastructure/logging"
	"marstek-bridge/internal/infrastructure/mqtt"
	"marstek-bridge/internal/marstek"
	"marstek-bridge/internal/poller"
	"marstek-bridge/internal/settings"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "unknown"
)

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
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting marstek bridge", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Database + settings store
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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store := settings.NewSQLiteStore(db.DB)

	// Cloud client + poll coordinator
	client := marstek.NewClient(cfg.Marstek.Email, cfg.Marstek.Password, marstek.Options{
		LoginURL:   cfg.Marstek.LoginURL,
		DevicesURL: cfg.Marstek.DevicesURL,
		Timeout:    cfg.GetTimeout(),
		Logger:     log.With("component", "marstek"),
	})

	coordinator := poller.New(client, poller.Options{
		Overrides:          store,
		DefaultCapacityKWh: cfg.Marstek.DefaultCapacityKWh,
		Interval:           cfg.GetPollInterval(),
		Logger:             log.With("component", "poller"),
	})

	checks := map[string]api.HealthChecker{
		"database": db,
	}

	// MQTT (optional)
	if cfg.MQTT.Enabled {
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
		mqttClient.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		publisher := mqtt.NewPublisher(mqttClient, log.With("component", "mqtt"))
		coordinator.OnUpdate(publisher.PublishSnapshot)
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		coordinator.OnUpdate(influxClient.WriteSnapshot)
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Startup poll. A transient cloud failure is survivable (the loop
	// retries), but bad credentials mean the operator must act first.
	if err := coordinator.Refresh(ctx); err != nil {
		if errors.Is(err, poller.ErrAuthenticationFailed) {
			return fmt.Errorf("startup poll: %w", err)
		}
		log.Warn("startup poll failed, continuing", "error", err)
	}

	go coordinator.Run(ctx)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.With("component", "api"),
		Poller:   coordinator,
		Settings: store,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}
	defer func() {
		log.Info("stopping api server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping api server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses the MARSTEK_CONFIG environment variable if set.
func getConfigPath() string {
	if path := os.Getenv("MARSTEK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
