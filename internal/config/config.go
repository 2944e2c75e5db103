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
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the fees-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	NotificationEventQueue string `mapstructure:"NOTIFICATION_EVENT_QUEUE"`
	ZbPayBaseURL           string `mapstructure:"ZBPAY_BASE_URL"`
	ZbPayAPIKey            string `mapstructure:"ZBPAY_API_KEY"`
	ZbPayAPISecret         string `mapstructure:"ZBPAY_API_SECRET"`
	PaymentReturnURL       string `mapstructure:"PAYMENT_RETURN_URL"`
	PaymentResultURL       string `mapstructure:"PAYMENT_RESULT_URL"`
	LedgerRetryAttempts    int    `mapstructure:"LEDGER_RETRY_ATTEMPTS"`
	DefaultStudentPassword string `mapstructure:"DEFAULT_STUDENT_PASSWORD"`
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
	viper.SetDefault("NOTIFICATION_EVENT_QUEUE", "fees_service.notification_events")
	viper.SetDefault("ZBPAY_BASE_URL", "https://zbnet.zb.co.zw/wallet_sandbox_api/payments-gateway")
	viper.SetDefault("LEDGER_RETRY_ATTEMPTS", 3)
	viper.SetDefault("DEFAULT_STUDENT_PASSWORD", "student123")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EVENT_QUEUE")
	_ = viper.BindEnv("ZBPAY_BASE_URL")
	_ = viper.BindEnv("ZBPAY_API_KEY")
	_ = viper.BindEnv("ZBPAY_API_SECRET")
	_ = viper.BindEnv("PAYMENT_RETURN_URL")
	_ = viper.BindEnv("PAYMENT_RESULT_URL")
	_ = viper.BindEnv("LEDGER_RETRY_ATTEMPTS")
	_ = viper.BindEnv("DEFAULT_STUDENT_PASSWORD")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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
	if config.LedgerRetryAttempts <= 0 {
		config.LedgerRetryAttempts = 3
	}
	if strings.TrimSpace(config.DefaultStudentPassword) == "" {
		config.DefaultStudentPassword = "student123"
	}

	return
}
