// Actuation Core - safety-gated actuation control plane
//
// This is the main entry point for the actuation service. It accepts
// action envelopes, drives them through the risk gate, policy
// evaluation, and confirmation handshake, routes permitted actions to
// device drivers, and records every transition in telemetry and the
// durable audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/unison-systems/actuation-core/migrations"

	"github.com/unison-systems/actuation-core/internal/api"
	"github.com/unison-systems/actuation-core/internal/audit"
	"github.com/unison-systems/actuation-core/internal/confirm"
	"github.com/unison-systems/actuation-core/internal/driver"
	"github.com/unison-systems/actuation-core/internal/engine"
	"github.com/unison-systems/actuation-core/internal/envelope"
	"github.com/unison-systems/actuation-core/internal/gate"
	"github.com/unison-systems/actuation-core/internal/infrastructure/config"
	"github.com/unison-systems/actuation-core/internal/infrastructure/database"
	"github.com/unison-systems/actuation-core/internal/infrastructure/influxdb"
	"github.com/unison-systems/actuation-core/internal/infrastructure/logging"
	"github.com/unison-systems/actuation-core/internal/infrastructure/mqtt"
	"github.com/unison-systems/actuation-core/internal/policy"
	"github.com/unison-systems/actuation-core/internal/telemetry"
	"github.com/unison-systems/actuation-core/internal/vdi"
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

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup wiring, one block per component
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting actuation core",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database for the durable audit trail
	db, err := database.Open(cfg.Database)
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

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log)

	readiness := map[string]api.HealthChecker{
		"database": db,
	}

	// Connect to MQTT broker (optional: MqttDriver degrades to logging
	// without it)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		readiness["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry sink)
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

	// Driver registry: registration order decides routing priority
	registry := driver.NewRegistry(
		driver.WithRegistryLogger(log),
		driver.WithLoggingOnly(cfg.Actuation.LoggingOnly),
	)
	registry.Register(driver.NewMockHomeDriver(log))
	registry.Register(driver.NewMockRobotDriver(log))
	registry.Register(driver.NewDesktopAutomationDriver(log))
	if mqttClient != nil {
		registry.Register(driver.NewMqttDriver(mqttClient, byte(cfg.MQTT.QoS), log))
	}
	registry.Register(driver.NewLoggingDriver(log))
	if cfg.Actuation.LoggingOnly {
		log.Warn("logging-only mode enabled, no driver will touch the real world")
	}

	// Telemetry emitter with optional InfluxDB sink; the WebSocket hub
	// sink is wired after the API server starts.
	emitterOpts := []telemetry.Option{telemetry.WithLogger(log)}
	if influxClient != nil {
		emitterOpts = append(emitterOpts, telemetry.WithSink(influxSink(influxClient)))
	}
	emitter := telemetry.NewEmitter(
		cfg.Downstream.ContextURL,
		cfg.Downstream.ContextGraphURL,
		cfg.Downstream.RendererURL,
		emitterOpts...,
	)
	defer emitter.Close()

	// Risk gate and policy client
	allowed := make([]envelope.RiskLevel, 0, len(cfg.Actuation.AllowedRiskLevels))
	for _, level := range cfg.Actuation.AllowedRiskLevels {
		allowed = append(allowed, envelope.RiskLevel(level))
	}
	riskGate := gate.New(allowed)

	policyClient := policy.NewClient(cfg.Downstream.PolicyURL, policy.WithLogger(log))
	if cfg.Downstream.PolicyURL == "" {
		log.Warn("no policy service configured, using local risk allowlist only")
	}

	coordinator := confirm.NewCoordinator(cfg.Confirmation.Expiry(), confirm.WithLogger(log))
	defer coordinator.Close()

	eng := engine.New(engine.Deps{
		Gate:           riskGate,
		Policy:         policyClient,
		Registry:       registry,
		Coordinator:    coordinator,
		Emitter:        emitter,
		Recorder:       recorder,
		RequiredScopes: cfg.Actuation.RequiredScopes,
		Logger:         log,
	})
	defer eng.Close()

	vdiCfg := vdi.Config{
		BaseURL:          cfg.Downstream.VDIAgentURL,
		Token:            cfg.VDI.AgentToken,
		RetryAttempts:    cfg.VDI.RetryAttempts,
		BackoffBase:      cfg.VDI.BackoffBase(),
		BackoffMax:       cfg.VDI.BackoffMax(),
		RequestTimeout:   cfg.VDI.RequestTimeout(),
		ProgressInterval: cfg.VDI.ProgressInterval(),
		OverallDeadline:  cfg.VDI.OverallDeadline(),
	}
	if influxClient != nil {
		vdiCfg.OnAttempt = func(kind vdi.TaskKind, attempt int, status string, elapsed time.Duration) {
			influxClient.WriteProxyAttempt(string(kind), attempt, status, float64(elapsed.Milliseconds()))
		}
	}
	vdiProxy := vdi.NewProxy(vdiCfg, vdi.WithLogger(log))

	server, err := api.New(api.Deps{
		Config:      cfg.Service,
		WS:          cfg.WebSocket,
		Auth:        cfg.Actuation,
		Logger:      log,
		Engine:      eng,
		Coordinator: coordinator,
		Emitter:     emitter,
		AuditRepo:   auditRepo,
		Gate:        riskGate,
		Policy:      policyClient,
		VDIProxy:    vdiProxy,
		Readiness:   readiness,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.Port))

	// Stream lifecycle events to WebSocket clients
	emitter.AddSink(server.Hub().Sink())

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, VDI/engine, coordinator, emitter, InfluxDB, MQTT,
	// database.

	log.Info("actuation core stopped")
	return nil
}

// influxSink adapts the InfluxDB client into a telemetry sink,
// recording each lifecycle transition as a measurement point. Completed
// events that carry a measured duration also feed the duration series.
func influxSink(client *influxdb.Client) telemetry.Sink {
	return telemetry.SinkFunc(func(event telemetry.Event) {
		client.WriteLifecycleEvent(event.ActionID, event.Lifecycle, event.Driver, event.RiskLevel)
		if ms, ok := event.Telemetry["duration_ms"].(int64); ok {
			client.WriteActionDuration(event.Driver, event.Status, float64(ms))
		}
	})
}

// getConfigPath returns the configuration file path.
// Uses ACTUATION_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACTUATION_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
