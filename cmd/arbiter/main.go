// File: cmd/arbiter/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arbiterdevs/btc-arbitration/internal/claims"
	"github.com/arbiterdevs/btc-arbitration/internal/config"
	"github.com/arbiterdevs/btc-arbitration/internal/connection"
	"github.com/arbiterdevs/btc-arbitration/internal/metrics"
	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/notification"
	"github.com/arbiterdevs/btc-arbitration/internal/oracle"
	"github.com/arbiterdevs/btc-arbitration/internal/requeststore"
	"github.com/arbiterdevs/btc-arbitration/internal/server"
	"github.com/arbiterdevs/btc-arbitration/internal/storage"
	"github.com/arbiterdevs/btc-arbitration/internal/watcher"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the arbitration client components together
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	metrics      *metrics.Manager
	connection   *connection.ConnectionManager
	sender       *connection.Sender
	storage      storage.Storage
	requests     *requeststore.Store
	orchestrator *claims.Orchestrator
	watcher      *watcher.LedgerWatcher
	notifier     *notification.Manager
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	if err := app.initializeConnection(); err != nil {
		return fmt.Errorf("failed to initialize connection: %w", err)
	}
	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initializeNotifier(); err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}
	if err := app.initializeClaims(); err != nil {
		return fmt.Errorf("failed to initialize claims: %w", err)
	}
	if err := app.initializeWatcher(); err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}
	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.registerHealthProbes()

	app.logger.Info("All components initialized successfully")
	return nil
}

// registerHealthProbes wires component health into the metrics manager
func (app *Application) registerHealthProbes() {
	app.metrics.RegisterComponent("connection", app.connection.IsConnected)
	app.metrics.RegisterComponent("storage", func() bool { return app.storage.Ping() == nil })
	app.metrics.RegisterComponent("watcher", app.watcher.IsRunning)
	app.metrics.RegisterComponent("notification", app.notifier.IsRunning)
}

// initializeConnection initializes the ledger connection and sender
func (app *Application) initializeConnection() error {
	app.connection = connection.NewConnectionManager(&app.config.Ledger)
	app.connection.SetMetricsManager(app.metrics)

	if err := app.connection.HealthCheck(); err != nil {
		return fmt.Errorf("ledger node unreachable: %w", err)
	}

	if app.config.Ledger.PrivateKey != "" {
		sender, err := connection.NewSender(app.connection, app.config.Ledger.PrivateKey, app.config.Ledger.GasLimit)
		if err != nil {
			return err
		}
		app.sender = sender
	}

	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return err
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	if sqliteStore, ok := store.(*storage.SQLiteStorage); ok {
		sqliteStore.SetMetricsManager(app.metrics)
	}

	app.storage = store
	return nil
}

// initializeNotifier initializes the notification manager
func (app *Application) initializeNotifier() error {
	sinks := []notification.Sink{notification.NewLogSink()}

	if app.config.Notifier.WebhookURL != "" {
		webhookSink, err := notification.NewWebhookSink(app.config.Notifier.WebhookURL, app.config.Notifier.Timeout)
		if err != nil {
			return err
		}
		sinks = append(sinks, webhookSink)
	}

	app.notifier = notification.NewManager(&app.config.Notifier, sinks...)
	app.notifier.SetMetricsManager(app.metrics)

	if app.config.Notifier.Enabled {
		return app.notifier.Start(app.ctx)
	}
	return nil
}

// initializeClaims initializes the request ledger and claim orchestrator
func (app *Application) initializeClaims() error {
	app.requests = requeststore.New(app.config.Requests.Path)
	if err := app.requests.Open(); err != nil {
		return err
	}

	if app.sender == nil {
		app.logger.Warn("No ledger private key configured, claim submission disabled")
		return nil
	}

	oracles := make(map[models.OracleKind]oracle.Client)
	if app.config.Oracle.SignatureAddress != "" {
		client, err := oracle.NewSignatureClient(app.sender, common.HexToAddress(app.config.Oracle.SignatureAddress))
		if err != nil {
			return err
		}
		oracles[models.OracleKindSignatureValidation] = client
	}
	if app.config.Oracle.ZkProofAddress != "" {
		client, err := oracle.NewZkProofClient(app.sender, common.HexToAddress(app.config.Oracle.ZkProofAddress))
		if err != nil {
			return err
		}
		oracles[models.OracleKindZkProof] = client
	}

	submitter, err := claims.NewManagerSubmitter(app.sender, common.HexToAddress(app.config.Claims.ManagerAddress))
	if err != nil {
		return err
	}

	app.orchestrator = claims.NewOrchestrator(oracles, app.requests, submitter, app.config.Oracle.PollInterval)
	app.orchestrator.SetMetricsManager(app.metrics)
	app.orchestrator.SetTransitionHook(func(req *claims.Request, state claims.State) {
		if app.notifier != nil {
			app.notifier.PublishClaimTransition(req.TransactionID.Hex(), req.Type, string(state))
		}
	})

	return nil
}

// initializeWatcher initializes the ledger watcher
func (app *Application) initializeWatcher() error {
	client, err := app.connection.GetClient()
	if err != nil {
		return err
	}

	contracts := make([]common.Address, 0, len(app.config.Watcher.Contracts))
	for _, addr := range app.config.Watcher.Contracts {
		contracts = append(contracts, common.HexToAddress(addr))
	}

	ledgerWatcher, err := watcher.New(client, app.storage, &watcher.Config{
		PollInterval:  app.config.Watcher.PollInterval,
		MaxBlockRange: app.config.Watcher.MaxBlockRange,
		StartBlock:    app.config.Watcher.StartBlock,
		Contracts:     contracts,
	})
	if err != nil {
		return err
	}

	ledgerWatcher.SetMetricsManager(app.metrics)
	ledgerWatcher.SetEventHook(func(event models.ChainEvent) {
		if app.notifier != nil {
			app.notifier.PublishEvent(event)
		}
	})

	app.watcher = ledgerWatcher
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	srv, err := server.NewHTTPServer(
		&app.config.Server,
		app.storage,
		app.watcher,
		app.orchestrator,
		app.requests,
		app.notifier,
		app.connection,
		app.metrics,
	)
	if err != nil {
		return err
	}

	app.server = srv
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting arbitration client")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.watcher.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"node_url":       app.config.Ledger.NodeURL,
		"contracts":      len(app.config.Watcher.Contracts),
	}).Info("Arbitration client started")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping arbitration client")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop watcher")
		}
	}
	if app.notifier != nil {
		if err := app.notifier.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notifier")
		}
	}
	if app.requests != nil {
		if err := app.requests.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close request ledger")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}

	app.logger.Info("Arbitration client stopped")
	return nil
}

// CLI commands

var rootCmd = &cobra.Command{
	Use:     "arbiter",
	Short:   "Cross-chain Bitcoin arbitration client",
	Long:    `Client for the BTC arbitration protocol: submits dispute evidence to verification oracles, drives compensation claims and projects ledger events into queryable local state.`,
	Version: AppVersion,
	RunE:    runArbiter,
}

// runArbiter is the main command
func runArbiter(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	return app.Stop()
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("btc-arbitration %s\n", AppVersion)
	},
}

// configCmd groups configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Ledger node: %s\n", cfg.Ledger.NodeURL)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Contracts: %d\n", len(cfg.Watcher.Contracts))

		return nil
	},
}

// rebuildCmd rebuilds the projection from the local event journal
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild projected state from the event journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return err
		}

		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		if err := store.Connect(); err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return err
		}

		w, err := watcher.New(nil, store, &watcher.Config{})
		if err != nil {
			return err
		}
		if err := w.Rebuild(context.Background()); err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}

		fmt.Println("Projection rebuilt from event journal")
		return nil
	},
}

// testCmd tests connectivity
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Printf("Testing ledger connection to %s...\n", cfg.Ledger.NodeURL)
		conn := connection.NewConnectionManager(&cfg.Ledger)
		if err := conn.HealthCheck(); err != nil {
			return fmt.Errorf("ledger connection failed: %w", err)
		}
		defer conn.Close()
		fmt.Println("Ledger connection OK")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("storage connection failed: %w", err)
		}
		defer store.Close()
		fmt.Println("Storage connection OK")

		fmt.Println("\nAll connectivity tests passed")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
