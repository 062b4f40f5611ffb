package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	PaystackSecretKey  string
	PaystackWebhookKey string

	// PaymentWindow caps how long a payment attempt may stay pending.
	PaymentWindow time.Duration
	// AmountTolerance is the accepted delta, in minor units, between the
	// amount a provider reports and the order total.
	AmountTolerance int64

	SweepInterval  time.Duration
	SweepBatchSize int
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    os.Getenv("APP_PORT"),
		AppEnv:     os.Getenv("APP_ENV"),

		PaystackSecretKey:  os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackWebhookKey: os.Getenv("PAYSTACK_WEBHOOK_KEY"),

		PaymentWindow:   minutesOrDefault("PAYMENT_WINDOW_MINUTES", 15),
		AmountTolerance: int64OrDefault("PAYMENT_AMOUNT_TOLERANCE", 0),
		SweepInterval:   minutesOrDefault("SWEEP_INTERVAL_MINUTES", 1),
		SweepBatchSize:  intOrDefault("SWEEP_BATCH_SIZE", 100),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	// Paystack signs callbacks with the API secret unless a dedicated
	// webhook key is configured.
	if cfg.PaystackWebhookKey == "" {
		cfg.PaystackWebhookKey = cfg.PaystackSecretKey
	}

	return cfg
}

func minutesOrDefault(key string, def int) time.Duration {
	return time.Duration(intOrDefault(key, def)) * time.Minute
}

func intOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

func int64OrDefault(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}
