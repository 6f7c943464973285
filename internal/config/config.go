package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "ledger-replay"
	defaultAppEnv           = "development"
	defaultLogLevel         = "info"
	defaultSnapshotBackend  = BackendFile
	defaultFileSnapshotPath = "temp/checkpoint.json"
	defaultSQLiteSnapshot   = "temp/checkpoint.db"
	defaultSnapshotKey      = "ledger-replay:checkpoint"
	defaultSnapshotInterval = 10
	defaultSnapshotTimeout  = 5 * time.Second
	defaultShutdownDelay    = 10 * time.Second
	defaultBreakerFailures  = 3
	defaultBreakerCooldown  = 30 * time.Second
	breakerSecondsEnvVar    = "SNAPSHOT_BREAKER_COOLDOWN_SECONDS"
	breakerDurationEnvVar   = "SNAPSHOT_BREAKER_COOLDOWN"
	snapTimeoutSecondsEnv   = "SNAPSHOT_TIMEOUT_SECONDS"
	snapTimeoutDurEnv       = "SNAPSHOT_TIMEOUT"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// Snapshot backends.
const (
	BackendNone     = "none"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config captures runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	LogLevel         string
	SnapshotBackend  string
	SnapshotPath     string
	SnapshotKey      string
	SnapshotInterval uint64
	SnapshotTimeout  time.Duration
	BreakerFailures  uint32
	BreakerCooldown  time.Duration
	Resume           bool
	DatabaseURL      string
	RedisURL         string
	NotifyChannel    string
	ReportPort       string
	ShutdownPeriod   time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		SnapshotBackend:  strings.ToLower(getEnv("SNAPSHOT_BACKEND", defaultSnapshotBackend)),
		SnapshotPath:     os.Getenv("SNAPSHOT_PATH"),
		SnapshotKey:      getEnv("SNAPSHOT_KEY", defaultSnapshotKey),
		SnapshotInterval: defaultSnapshotInterval,
		SnapshotTimeout:  defaultSnapshotTimeout,
		BreakerFailures:  defaultBreakerFailures,
		BreakerCooldown:  defaultBreakerCooldown,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		NotifyChannel:    os.Getenv("NOTIFY_CHANNEL"),
		ReportPort:       os.Getenv("REPORT_PORT"),
		ShutdownPeriod:   defaultShutdownDelay,
	}

	if v := os.Getenv("SNAPSHOT_INTERVAL"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SNAPSHOT_INTERVAL: %w", err)
		}
		cfg.SnapshotInterval = n
	}

	if v := os.Getenv("SNAPSHOT_BREAKER_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SNAPSHOT_BREAKER_FAILURES: %w", err)
		}
		cfg.BreakerFailures = uint32(n)
	}

	if v := os.Getenv("RESUME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RESUME: %w", err)
		}
		cfg.Resume = b
	}

	var err error
	if cfg.SnapshotTimeout, err = durationFromEnv(snapTimeoutSecondsEnv, snapTimeoutDurEnv, cfg.SnapshotTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BreakerCooldown, err = durationFromEnv(breakerSecondsEnvVar, breakerDurationEnvVar, cfg.BreakerCooldown); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}

	switch cfg.SnapshotBackend {
	case BackendNone, BackendRedis:
	case BackendFile:
		if cfg.SnapshotPath == "" {
			cfg.SnapshotPath = defaultFileSnapshotPath
		}
	case BackendSQLite:
		if cfg.SnapshotPath == "" {
			cfg.SnapshotPath = defaultSQLiteSnapshot
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when SNAPSHOT_BACKEND=%s", BackendPostgres)
		}
	default:
		return Config{}, fmt.Errorf("invalid SNAPSHOT_BACKEND: %q", cfg.SnapshotBackend)
	}

	if cfg.SnapshotBackend == BackendRedis && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when SNAPSHOT_BACKEND=%s", BackendRedis)
	}

	if cfg.NotifyChannel != "" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when NOTIFY_CHANNEL is set")
	}

	if cfg.Resume && cfg.SnapshotBackend == BackendNone {
		return Config{}, fmt.Errorf("RESUME requires a SNAPSHOT_BACKEND other than %s", BackendNone)
	}

	return cfg, nil
}

// SnapshotsEnabled reports whether periodic checkpoints should be written.
func (c Config) SnapshotsEnabled() bool {
	return c.SnapshotBackend != BackendNone && c.SnapshotInterval > 0
}

// ReportAddress returns the listen address for the report server, or "" when
// the server is disabled.
func (c Config) ReportAddress() string {
	if c.ReportPort == "" {
		return ""
	}
	if strings.HasPrefix(c.ReportPort, ":") {
		return c.ReportPort
	}
	return fmt.Sprintf(":%s", c.ReportPort)
}

// durationFromEnv reads a whole-seconds variable, falling back to a Go
// duration string variable, then to def.
func durationFromEnv(secondsKey, durationKey string, def time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return def, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
