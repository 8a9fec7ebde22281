/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange    string `mapstructure:"NOTIFICATION_EXCHANGE"`
	AuthJWKSURL             string `mapstructure:"AUTH_JWKS_URL"`
	BatchRateLimitPerMinute int    `mapstructure:"BATCH_RATE_LIMIT_PER_MINUTE"`
	BatchSelectionLimit     int    `mapstructure:"BATCH_SELECTION_LIMIT"`
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
	viper.SetDefault("NOTIFICATION_EXCHANGE", "givebridge.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "givebridge:rate_limit")
	viper.SetDefault("BATCH_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("BATCH_SELECTION_LIMIT", 500)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("BATCH_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BATCH_SELECTION_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "givebridge:rate_limit"
	}
	config.NotificationExchange = strings.TrimSpace(config.NotificationExchange)
	if config.NotificationExchange == "" {
		config.NotificationExchange = "givebridge.events"
	}

	if config.BatchRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative batch rate limit configured; disabling limiter\" per_minute=%d", config.BatchRateLimitPerMinute)
		config.BatchRateLimitPerMinute = 0
	}
	if config.BatchSelectionLimit <= 0 {
		config.BatchSelectionLimit = 500
	}

	return
}
