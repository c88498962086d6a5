/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the donation-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	ProviderName      string `mapstructure:"PROVIDER_NAME"`
	ProviderAPIURL    string `mapstructure:"PROVIDER_API_URL"`
	ProviderAPIKey    string `mapstructure:"PROVIDER_API_KEY"`
	ProviderAPISecret string `mapstructure:"PROVIDER_API_SECRET"`

	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`

	USDTWalletAddress  string `mapstructure:"USDT_WALLET_ADDRESS"`
	USDTNetwork        string `mapstructure:"USDT_NETWORK"`
	EnableAutoWithdraw bool   `mapstructure:"ENABLE_AUTO_WITHDRAW"`

	MinDonationBRL float64 `mapstructure:"MIN_DONATION_BRL"`
	MaxDonationBRL float64 `mapstructure:"MAX_DONATION_BRL"`

	InternalAPISecret  string `mapstructure:"INTERNAL_API_SECRET"`
	CronSecret         string `mapstructure:"CRON_SECRET"`
	DashboardJWTSecret string `mapstructure:"DASHBOARD_JWT_SECRET"`

	SlackWebhookURL string `mapstructure:"SLACK_WEBHOOK_URL"`

	RateLimitMaxRequests int `mapstructure:"RATE_LIMIT_MAX_REQUESTS"`
	RateLimitWindowMS    int `mapstructure:"RATE_LIMIT_WINDOW_MS"`

	WorkerBatchSize    int    `mapstructure:"WORKER_BATCH_SIZE"`
	ReconcileBatchSize int    `mapstructure:"RECONCILE_BATCH_SIZE"`
	WorkerSchedule     string `mapstructure:"WORKER_SCHEDULE"`
	ReconcileSchedule  string `mapstructure:"RECONCILE_SCHEDULE"`

	PixKey       string `mapstructure:"PIX_KEY"`
	MerchantName string `mapstructure:"MERCHANT_NAME"`
	MerchantCity string `mapstructure:"MERCHANT_CITY"`

	EventExchange string `mapstructure:"EVENT_EXCHANGE"`
}

// RateLimitWindow returns the webhook rate-limit window as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// Validate reports the required variables that are missing. The service
// refuses to boot without them; REDIS_URL, RABBITMQ_URL and
// SLACK_WEBHOOK_URL stay optional because the service degrades gracefully
// without those backends.
func (c Config) Validate() error {
	var missing []string
	required := map[string]string{
		"DATABASE_URL":        c.DatabaseURL,
		"PROVIDER_API_URL":    c.ProviderAPIURL,
		"PROVIDER_API_KEY":    c.ProviderAPIKey,
		"PROVIDER_API_SECRET": c.ProviderAPISecret,
		"WEBHOOK_SECRET":      c.WebhookSecret,
		"USDT_WALLET_ADDRESS": c.USDTWalletAddress,
		"INTERNAL_API_SECRET": c.InternalAPISecret,
		"CRON_SECRET":         c.CronSecret,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	switch c.USDTNetwork {
	case "TRC20", "ERC20", "POLYGON":
	default:
		return fmt.Errorf("unsupported USDT_NETWORK %q (want TRC20, ERC20 or POLYGON)", c.USDTNetwork)
	}
	if c.MinDonationBRL <= 0 || c.MaxDonationBRL <= c.MinDonationBRL {
		return fmt.Errorf("invalid donation bounds: min=%v max=%v", c.MinDonationBRL, c.MaxDonationBRL)
	}
	return nil
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PROVIDER_NAME", "mercadobitcoin")
	viper.SetDefault("USDT_NETWORK", "TRC20")
	viper.SetDefault("ENABLE_AUTO_WITHDRAW", true)
	viper.SetDefault("MIN_DONATION_BRL", 1.0)
	viper.SetDefault("MAX_DONATION_BRL", 50000.0)
	viper.SetDefault("RATE_LIMIT_MAX_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW_MS", 60000)
	viper.SetDefault("WORKER_BATCH_SIZE", 25)
	viper.SetDefault("RECONCILE_BATCH_SIZE", 50)
	viper.SetDefault("WORKER_SCHEDULE", "@every 1m")
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 15m")
	viper.SetDefault("MERCHANT_NAME", "RESGATE PRIME")
	viper.SetDefault("MERCHANT_CITY", "SAO PAULO")
	viper.SetDefault("EVENT_EXCHANGE", "donation_events")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"REDIS_URL",
		"RABBITMQ_URL",
		"PROVIDER_NAME",
		"PROVIDER_API_URL",
		"PROVIDER_API_KEY",
		"PROVIDER_API_SECRET",
		"WEBHOOK_SECRET",
		"USDT_WALLET_ADDRESS",
		"USDT_NETWORK",
		"ENABLE_AUTO_WITHDRAW",
		"MIN_DONATION_BRL",
		"MAX_DONATION_BRL",
		"INTERNAL_API_SECRET",
		"CRON_SECRET",
		"DASHBOARD_JWT_SECRET",
		"SLACK_WEBHOOK_URL",
		"RATE_LIMIT_MAX_REQUESTS",
		"RATE_LIMIT_WINDOW_MS",
		"WORKER_BATCH_SIZE",
		"RECONCILE_BATCH_SIZE",
		"WORKER_SCHEDULE",
		"RECONCILE_SCHEDULE",
		"PIX_KEY",
		"MERCHANT_NAME",
		"MERCHANT_CITY",
		"EVENT_EXCHANGE",
	} {
		_ = viper.BindEnv(key)
	}

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file, using environment values", "error", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.USDTNetwork = strings.ToUpper(strings.TrimSpace(config.USDTNetwork))
	config.ProviderName = strings.ToLower(strings.TrimSpace(config.ProviderName))

	if config.RateLimitMaxRequests <= 0 {
		config.RateLimitMaxRequests = 100
	}
	if config.RateLimitWindowMS <= 0 {
		config.RateLimitWindowMS = 60000
	}
	if config.WorkerBatchSize <= 0 {
		config.WorkerBatchSize = 25
	}
	if config.ReconcileBatchSize <= 0 {
		config.ReconcileBatchSize = 50
	}

	return
}
