// Central server for the FSE 2021 distributed home automation work.
//
// The server keeps the registry of ESP32 devices announced on the MQTT bus,
// mirrors it to every connected dashboard over WebSocket, and relays
// dashboard commands back to the devices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/FSE-2021-1/central-server/migrations"

	"github.com/FSE-2021-1/central-server/internal/api"
	"github.com/FSE-2021-1/central-server/internal/audit"
	"github.com/FSE-2021-1/central-server/internal/device"
	"github.com/FSE-2021-1/central-server/internal/fleet"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/config"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/database"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/influxdb"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/logging"
	"github.com/FSE-2021-1/central-server/internal/infrastructure/mqtt"
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

// fleetStatsInterval is how often registry counts are written to InfluxDB.
const fleetStatsInterval = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand creates the CLI. Running it without a subcommand serves.
func newRootCommand() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), resolveConfigPath(configPath))
	}

	root := &cobra.Command{
		Use:           "central",
		Short:         "Central server for the device fleet",
		Long:          "Tracks devices announced on the MQTT bus and synchronises them with dashboards over WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CENTRAL_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the central server",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "central %s (commit %s, built %s)\n", version, commit, date)
		},
	})

	return root
}

// resolveConfigPath returns the configuration file path: the flag, then
// CENTRAL_CONFIG, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("CENTRAL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
//
//nolint:gocognit,gocyclo // Linear startup sequence with a deferred close chain
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting central server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"namespace", cfg.Fleet.Namespace,
		"level", cfg.Logging.Level,
	)

	// Open audit database (optional)
	var (
		db        *database.DB
		auditRepo audit.Repository
		recorder  fleet.AuditRecorder
	)
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
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
		log.Info("audit database ready", "path", cfg.Database.Path)

		repo := audit.NewSQLiteRepository(db.DB)
		rec := audit.NewRecorder(repo)
		rec.SetLogger(log.Component("audit"))
		auditRepo, recorder = repo, rec
	} else {
		log.Info("audit database disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Fleet.Namespace)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
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
	bus := &mqttBusAdapter{client: mqttClient}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics fleet.MetricWriter
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
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	// Bus side: announcements, then per-zone measurements
	router, err := fleet.NewRouter(fleet.RouterConfig{
		Registry:  registry,
		Bus:       bus,
		Namespace: cfg.Fleet.Namespace,
		Metrics:   metrics,
		Logger:    log.Component("router"),
	})
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}
	if startErr := router.Start(); startErr != nil {
		return fmt.Errorf("subscribing to announcements: %w", startErr)
	}
	log.Info("listening for device announcements", "topic", router.Topics().AllAnnouncements())

	zones := fleet.NewZoneSubscriptions(bus, router.Topics(), router.HandleMessage, cfg.Fleet.SharedZones)
	zones.SetLogger(log.Component("zones"))

	// Client side: hub, commands and the state broadcaster
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	commands := fleet.NewCommands(fleet.CommandsConfig{
		Registry: registry,
		Bus:      bus,
		Pusher:   hub,
		Zones:    zones,
		Topics:   router.Topics(),
		Audit:    recorder,
		Logger:   log.Component("commands"),
	})
	fleet.NewBroadcaster(hub).Attach(registry)

	monitor, err := fleet.NewMonitor(fleet.MonitorConfig{
		Registry:       registry,
		Bus:            bus,
		Zones:          zones,
		Topics:         router.Topics(),
		StaleThreshold: cfg.Fleet.StaleThreshold,
		SweepInterval:  cfg.Fleet.SweepInterval,
		Audit:          recorder,
		Logger:         log.Component("liveness"),
	})
	if err != nil {
		return fmt.Errorf("creating liveness monitor: %w", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go hub.Run(runCtx)
	go monitor.Run(runCtx)
	if influxClient != nil {
		go writeFleetStats(runCtx, registry, influxClient, fleetStatsInterval)
	}

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Registry:  registry,
		Commands:  commands,
		Hub:       hub,
		Bus:       mqttClient,
		Router:    router,
		AuditRepo: auditRepo,
		Version:   version,
	}
	if db != nil {
		deps.DB = db
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(runCtx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Hub, monitor and stats writer (stop)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database (if enabled)

	log.Info("central server stopped")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Audit database to check (may be nil if disabled)
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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

// fleetStatsWriter is the part of the InfluxDB client used for fleet counts.
type fleetStatsWriter interface {
	WriteFleetStats(active, pending int)
}

// writeFleetStats records active and pending counts every interval until
// ctx is cancelled.
func writeFleetStats(ctx context.Context, registry *device.Registry, w fleetStatsWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := registry.GetStats()
			w.WriteFleetStats(stats.Active, stats.Pending)
		}
	}
}

// mqttBusAdapter adapts the infrastructure MQTT client to fleet.Bus.
// The fleet package publishes with the configured QoS, never retained, and
// its handlers do not return errors.
type mqttBusAdapter struct {
	client *mqtt.Client
}

var _ fleet.Bus = (*mqttBusAdapter)(nil)

// Publish implements fleet.Bus.
func (a *mqttBusAdapter) Publish(topic string, payload []byte) error {
	return a.client.PublishDefault(topic, payload)
}

// Subscribe implements fleet.Bus.
func (a *mqttBusAdapter) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, a.client.QoS(), func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements fleet.Bus.
func (a *mqttBusAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}
