// Bambi Core - enclosure door automation for Bambu Lab printers
//
// This is the main entry point for the Bambi controller. It watches the
// printer's MQTT job reports, opens the enclosure door once the bed has
// cooled near the end of a print, closes it after the job finishes, and
// replays a click sequence in the slicer to start the next job.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/bambi-core/migrations"

	"github.com/nerrad567/bambi-core/internal/actuator"
	"github.com/nerrad567/bambi-core/internal/api"
	"github.com/nerrad567/bambi-core/internal/bot"
	"github.com/nerrad567/bambi-core/internal/door"
	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/infrastructure/database"
	"github.com/nerrad567/bambi-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/bambi-core/internal/infrastructure/logging"
	"github.com/nerrad567/bambi-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/bambi-core/internal/infrastructure/serial"
	"github.com/nerrad567/bambi-core/internal/joblog"
	"github.com/nerrad567/bambi-core/internal/material"
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

// errVersionRequested stops run after --version has been printed.
var errVersionRequested = errors.New("version requested")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, errVersionRequested) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath string
}

// parseFlags parses the command line. --version prints the build info and
// returns errVersionRequested.
func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("bambi", pflag.ContinueOnError)
	configFlag := fs.StringP("config", "c", "", "path to the YAML configuration file (env BAMBI_CONFIG)")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	if *showVersion {
		fmt.Printf("bambi %s (commit %s, built %s)\n", version, commit, date)
		return options{}, errVersionRequested
	}

	return options{configPath: getConfigPath(*configFlag)}, nil
}

// getConfigPath returns the configuration file path: the flag if set,
// then BAMBI_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("BAMBI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
// Startup failures are returned; once running, only ctx ends it.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // linear startup sequence
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting Bambi Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	cfg.Materials = initialMaterials(cfg.Materials)
	if err := material.Validate(cfg.Materials); err != nil {
		// Not fatal: the door stays shut until a valid profile is selected.
		log.Warn("material profiles invalid", "error", err)
	}

	// Database and job log
	db, err := database.Open(ctx, cfg.Database)
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
	schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // informational
	log.Info("database migrations complete", "schema_version", schema)

	journal := joblog.NewSQLiteRepository(db.DB)

	// Actuator link
	link := serial.NewLink(cfg.Serial, log.With("component", "serial"))
	dispatcher := actuator.NewDispatcher(link, log.With("component", "actuator"))

	// Bot executor
	sink, err := newClickSink(cfg.Bot, log)
	if err != nil {
		return fmt.Errorf("creating click sink: %w", err)
	}
	executor := bot.NewExecutor(sink, log.With("component", "bot"))
	parts, err := journal.Count(ctx, joblog.KindRestartCompleted)
	if err != nil {
		return fmt.Errorf("restoring printed parts counter: %w", err)
	}
	executor.SetCompleted(parts)
	log.Info("bot executor ready", "steps", len(cfg.Bot.Sequence), "printed_parts", parts)

	// InfluxDB (optional)
	var metrics door.Metrics
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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

	// Controller
	ctrl, err := door.New(door.Deps{
		Config:     cfg,
		Dispatcher: dispatcher,
		Bot:        executor,
		Journal:    journal,
		Metrics:    metrics,
		Logger:     log.With("component", "door"),
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	ctrlCtx, stopCtrl := context.WithCancel(ctx)
	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctrlCtx) }()
	defer func() {
		stopCtrl()
		if runErr := <-ctrlDone; runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("controller stopped with error", "error", runErr)
		}
		log.Info("controller stopped")
	}()

	link.SetLineHandler(ctrl.HandleDeviceLine)
	link.SetStateHandler(ctrl.SetLinkConnected)
	link.Start()
	defer func() {
		log.Info("closing serial link")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing serial link", "error", closeErr)
		}
	}()
	log.Info("serial link started", "port", cfg.Serial.Port, "baud_rate", cfg.Serial.BaudRate)

	// Printer MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to printer MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from printer MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("printer MQTT reconnected")
		ctrl.SetPrinterConnected(true)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("printer MQTT disconnected", "error", err)
		ctrl.SetPrinterConnected(false)
	})
	ctrl.SetPrinterConnected(true)
	log.Info("printer MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"serial", cfg.Printer.Serial,
	)

	if err := mqttClient.WatchPrinter(cfg.Printer.Serial, func(_ string, payload []byte) error {
		ctrl.HandleReport(payload)
		return nil
	}); err != nil {
		return fmt.Errorf("watching printer reports: %w", err)
	}
	defer func() {
		if unwatchErr := mqttClient.UnwatchPrinter(cfg.Printer.Serial); unwatchErr != nil {
			log.Warn("error unsubscribing from printer reports", "error", unwatchErr)
		}
	}()

	// Status API
	if cfg.API.Enabled {
		health := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			health["influxdb"] = influxClient
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log.With("component", "api"),
			Controller: ctrl,
			History:    journal,
			Health:     health,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, printer report subscription, MQTT, serial link, controller
	// (cancels timers), InfluxDB, database.
	return nil
}

// initialMaterials falls back to the built-in profiles when none are
// configured. An unset active id then selects the first of them.
func initialMaterials(m config.MaterialsConfig) config.MaterialsConfig {
	if len(m.Profiles) > 0 {
		return m
	}
	m.Profiles = material.DefaultProfiles()
	if m.ActiveProfileID == "" {
		m.ActiveProfileID = m.Profiles[0].ID
	}
	return m
}

// newClickSink returns a command sink for a configured click command, or a
// sink that only logs the steps.
func newClickSink(cfg config.BotConfig, log *logging.Logger) (bot.Sink, error) {
	if len(cfg.ClickCommand) == 0 {
		log.Warn("bot.click_command not set, restart clicks will only be logged")
		return bot.NewNoopSink(log), nil
	}
	return bot.NewCommandSink(cfg.ClickCommand)
}
