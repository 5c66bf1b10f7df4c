package config

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/hgiraudo/rofex/pkg/secrets"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Rofex     RofexConfig     `mapstructure:"rofex"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Watchlist []WatchlistItem `mapstructure:"watchlist"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	GCP       GCPConfig       `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RofexConfig struct {
	Environment       string  `mapstructure:"environment"` // remarket or production
	Username          string  `mapstructure:"username"`
	Password          string  `mapstructure:"password"`
	Account           string  `mapstructure:"account"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	ReconnectDelay    int     `mapstructure:"reconnect_delay"`
	MaxReconnects     int     `mapstructure:"max_reconnects"`
}

type QuotesConfig struct {
	DollarURL   string `mapstructure:"dollar_url"`
	DollarBoard string `mapstructure:"dollar_board"`
	YahooURL    string `mapstructure:"yahoo_url"`
}

type TradingConfig struct {
	TransactionCost float64 `mapstructure:"transaction_cost"`
	OnMissingQuote  string  `mapstructure:"on_missing_quote"` // zero or skip
	BoardInterval   int     `mapstructure:"board_interval"`   // seconds between console boards
}

// WatchlistItem is one future/underlying row to monitor. Class is currency or
// equity; Maturity (dd-mm-yyyy) overrides the maturity parsed from the ticker.
type WatchlistItem struct {
	Future     string `mapstructure:"future"`
	Underlying string `mapstructure:"underlying"`
	Class      string `mapstructure:"class"`
	Maturity   string `mapstructure:"maturity"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; viper and the explicit overrides read the result
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rofex-rates")
	}

	v.SetEnvPrefix("ROFEX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("rofex.environment", "remarket")
	v.SetDefault("rofex.requests_per_second", 5)
	v.SetDefault("rofex.reconnect_delay", 5)
	v.SetDefault("rofex.max_reconnects", 10)

	v.SetDefault("quotes.dollar_url", "")
	v.SetDefault("quotes.dollar_board", "Dolar Oficial")
	v.SetDefault("quotes.yahoo_url", "")

	v.SetDefault("trading.transaction_cost", 0.0)
	v.SetDefault("trading.on_missing_quote", "zero")
	v.SetDefault("trading.board_interval", 30)

	v.SetDefault("database.path", "./data/trades.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.broker_username", secretNames.BrokerUsername)
	v.SetDefault("gcp.secret_names.broker_password", secretNames.BrokerPassword)
	v.SetDefault("gcp.secret_names.broker_account", secretNames.BrokerAccount)
}

func overrideFromEnv(config *Config) {
	if user := os.Getenv("ROFEX_USER"); user != "" {
		config.Rofex.Username = user
	}
	if password := os.Getenv("ROFEX_PASSWORD"); password != "" {
		config.Rofex.Password = password
	}
	if account := os.Getenv("ROFEX_ACCOUNT"); account != "" {
		config.Rofex.Account = account
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID,
		config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that are not already set
	if config.Rofex.Username == "" {
		config.Rofex.Username = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.BrokerUsername, "")
	}
	if config.Rofex.Password == "" {
		config.Rofex.Password = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.BrokerPassword, "")
	}
	if config.Rofex.Account == "" {
		config.Rofex.Account = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.BrokerAccount, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}

func validate(config *Config) error {
	if config.Trading.TransactionCost < 0 {
		return fmt.Errorf("trading.transaction_cost must not be negative")
	}
	switch config.Trading.OnMissingQuote {
	case "zero", "skip":
	default:
		return fmt.Errorf("trading.on_missing_quote must be zero or skip, got %q",
			config.Trading.OnMissingQuote)
	}
	for i, item := range config.Watchlist {
		if item.Future == "" || item.Underlying == "" {
			return fmt.Errorf("watchlist[%d]: future and underlying are required", i)
		}
	}
	return nil
}
