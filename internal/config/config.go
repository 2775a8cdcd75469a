package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string

	OTLPEndpoint string
	OTLPInsecure bool

	AlertInterval      time.Duration
	LongWaitMins       int
	QueueWarningDepth  int
	QueueCriticalDepth int
	SlowTellerMins     int

	AutoOpenCron  string
	AutoCloseCron string

	RateLimitBurst     int
	RateLimitPerMinute int
	NotifyBuffer       int
	HubSendBuffer      int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure: readBool("OTEL_EXPORTER_OTLP_INSECURE", false),

		AlertInterval:      readDurationSeconds("ALERT_INTERVAL_SECONDS", 30),
		LongWaitMins:       readInt("ALERT_LONG_WAIT_MINS", 20),
		QueueWarningDepth:  readInt("ALERT_QUEUE_WARNING", 10),
		QueueCriticalDepth: readInt("ALERT_QUEUE_CRITICAL", 20),
		SlowTellerMins:     readInt("ALERT_SLOW_TELLER_MINS", 15),

		AutoOpenCron:  os.Getenv("QUEUE_AUTO_OPEN_CRON"),
		AutoCloseCron: os.Getenv("QUEUE_AUTO_CLOSE_CRON"),

		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		NotifyBuffer:       readInt("NOTIFY_BUFFER", 256),
		HubSendBuffer:      readInt("HUB_SEND_BUFFER", 64),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
