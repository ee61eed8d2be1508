package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the dispatch API
// process. Values are primarily loaded from environment variables with
// sane defaults so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	DispatchRadiusKm    float64
	RedispatchRadiusKm  float64
	NotificationTTL     time.Duration
	ExpirySweepInterval time.Duration
	DispatchMaxAttempts int

	DefaultSpeedMps float64
	FareBase        float64
	FarePerKm       float64
	OSRMEndpoint    string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:            ":8080",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		KafkaTopic:          "ride-events",
		DispatchRadiusKm:    5,
		RedispatchRadiusKm:  10,
		NotificationTTL:     10 * time.Second,
		ExpirySweepInterval: 2 * time.Second,
		DefaultSpeedMps:     10,
		FareBase:            1000,
		FarePerKm:           500,
		LogLevel:            "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.DispatchRadiusKm, "DISPATCH_RADIUS_KM", &errs)
	setFloatFromEnv(&cfg.RedispatchRadiusKm, "REDISPATCH_RADIUS_KM", &errs)
	setDurationFromEnv(&cfg.NotificationTTL, "NOTIFICATION_TTL", &errs)
	setDurationFromEnv(&cfg.ExpirySweepInterval, "EXPIRY_SWEEP_INTERVAL", &errs)
	setIntFromEnv(&cfg.DispatchMaxAttempts, "DISPATCH_MAX_ATTEMPTS", &errs)

	setFloatFromEnv(&cfg.DefaultSpeedMps, "DEFAULT_SPEED_MPS", &errs)
	setFloatFromEnv(&cfg.FareBase, "FARE_BASE", &errs)
	setFloatFromEnv(&cfg.FarePerKm, "FARE_PER_KM", &errs)
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.DispatchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_RADIUS_KM must be > 0"))
	}
	if cfg.RedispatchRadiusKm < cfg.DispatchRadiusKm {
		errs = append(errs, fmt.Errorf("REDISPATCH_RADIUS_KM must be >= DISPATCH_RADIUS_KM"))
	}
	if cfg.NotificationTTL <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_TTL must be > 0"))
	}
	if cfg.DispatchMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
