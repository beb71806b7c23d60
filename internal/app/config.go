package app

import (
	"os"
	"strings"
	"time"
)

// Config описывает настройки запуска приложения.
// Все значения читаются из окружения; пустой PostgresDSN включает
// in-memory хранилище, пустой KafkaBrokers — логирующий sink.
type Config struct {
	HTTPAddr     string
	MetricsAddr  string
	PostgresDSN  string
	KafkaBrokers []string
	BulkTimeout  time.Duration
	LogLevel     string
}

// DefaultConfig возвращает базовую конфигурацию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		BulkTimeout: 10 * time.Minute,
		LogLevel:    "info",
	}
}

// ConfigFromEnv собирает конфигурацию из переменных окружения
// поверх значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FULFILLMENT_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("FULFILLMENT_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("FULFILLMENT_POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	} else if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("FULFILLMENT_BULK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BulkTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("FULFILLMENT_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
