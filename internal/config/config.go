// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Claims   ClaimsConfig   `mapstructure:"claims"`
	Requests RequestsConfig `mapstructure:"requests"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LedgerConfig contains EVM ledger connection configuration
type LedgerConfig struct {
	NodeURL        string        `mapstructure:"node_url"`
	NetworkID      int           `mapstructure:"network_id"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	PrivateKey     string        `mapstructure:"private_key"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
}

// OracleConfig contains verification oracle configuration
type OracleConfig struct {
	ZkProofAddress      string        `mapstructure:"zk_proof_address"`
	SignatureAddress    string        `mapstructure:"signature_address"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	SubmitConfirmations int           `mapstructure:"submit_confirmations"`
}

// ClaimsConfig contains compensation manager contract configuration
type ClaimsConfig struct {
	ManagerAddress string `mapstructure:"manager_address"`
}

// RequestsConfig contains local request ledger configuration
type RequestsConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// WatcherConfig contains event watching configuration
type WatcherConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxBlockRange uint64        `mapstructure:"max_block_range"`
	StartBlock    uint64        `mapstructure:"start_block"`
	Contracts     []string      `mapstructure:"contracts"`
}

// NotifierConfig contains notification configuration
type NotifierConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	QueueSize  int           `mapstructure:"queue_size"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("BTC_ARBITRATION")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if nodeURL := os.Getenv("LEDGER_NODE_URL"); nodeURL != "" {
		config.Ledger.NodeURL = nodeURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if key := os.Getenv("LEDGER_PRIVATE_KEY"); key != "" {
		config.Ledger.PrivateKey = key
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "btc-arbitration")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Ledger defaults
	viper.SetDefault("ledger.request_timeout", "30s")
	viper.SetDefault("ledger.retry_attempts", 3)
	viper.SetDefault("ledger.retry_delay", "5s")
	viper.SetDefault("ledger.gas_limit", 500000)

	// Oracle defaults
	viper.SetDefault("oracle.poll_interval", "5s")
	viper.SetDefault("oracle.submit_confirmations", 1)

	// Request ledger defaults
	viper.SetDefault("requests.path", "./data/verification_requests.json")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/arbitration.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Watcher defaults
	viper.SetDefault("watcher.poll_interval", "15s")
	viper.SetDefault("watcher.max_block_range", 2000)
	viper.SetDefault("watcher.start_block", 0)

	// Notifier defaults
	viper.SetDefault("notifier.enabled", true)
	viper.SetDefault("notifier.timeout", "10s")
	viper.SetDefault("notifier.queue_size", 100)

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ledger.NodeURL == "" {
		return fmt.Errorf("ledger node URL is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Oracle.PollInterval <= 0 {
		return fmt.Errorf("oracle poll interval must be positive")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher poll interval must be positive")
	}
	if c.Requests.Path == "" {
		return fmt.Errorf("request ledger path is required")
	}
	return nil
}
