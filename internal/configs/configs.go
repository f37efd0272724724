/*
Package configs loads the server configuration from environment variables.

Development gets working defaults for everything; other environments must provide the
secrets and the database explicitly.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

const developmentJWTSecret = "dmchat_insecure_development_secret"

// AppConfig contains every setting the server reads at start-up.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Storage Settings
	StoreDriver string
	DatabaseDSN string

	// S3 Storage Settings. Image messages are disabled when the bucket is not configured.
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	// Realtime Settings
	WSIdleTimeout       time.Duration
	WSSendQueueSize     int
	HandshakeRate       float64
	HandshakeBurst      int
	MessageSendRate     float64
	MessageSendBurst    int
	ShutdownGracePeriod time.Duration
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (*AppConfig, error) {
	return loadFrom(os.Getenv)
}

func loadFrom(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Server Settings ---
	cfg.Environment = getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Port, err = intVar(getenv, "PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	for _, origin := range strings.Split(getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	cfg.JWTSecret = getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = developmentJWTSecret
	}

	// --- Storage Settings ---
	cfg.DatabaseDSN = getenv("DATABASE_URL")

	cfg.StoreDriver = strings.ToLower(getenv("STORE_DRIVER"))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StorePostgres
		if cfg.IsDevelopment() && cfg.DatabaseDSN == "" {
			cfg.StoreDriver = StoreMemory
		}
	}

	switch cfg.StoreDriver {
	case StoreMemory:
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("STORE_DRIVER=%s is only allowed in development", StoreMemory)
		}
	case StorePostgres:
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q, want %s or %s", cfg.StoreDriver, StoreMemory, StorePostgres)
	}

	// --- S3 Storage Settings ---
	cfg.S3BucketName = getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = getenv("S3_ENDPOINT")
	cfg.S3Region = getenv("S3_REGION")
	cfg.S3AccessKeyID = getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3PublicBaseURL = getenv("S3_PUBLIC_BASE_URL")

	if cfg.S3BucketName != "" {
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT environment variable is required when S3_BUCKET_NAME is set")
		}
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET_NAME is set")
		}
	}

	// --- Realtime Settings ---
	if cfg.WSIdleTimeout, err = durationVar(getenv, "WS_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSIdleTimeout < time.Second {
		return nil, fmt.Errorf("WS_IDLE_TIMEOUT must be at least 1s, got %s", cfg.WSIdleTimeout)
	}

	if cfg.WSSendQueueSize, err = intVar(getenv, "WS_SEND_QUEUE", 256); err != nil {
		return nil, err
	}
	if cfg.WSSendQueueSize < 1 {
		return nil, fmt.Errorf("WS_SEND_QUEUE must be positive, got %d", cfg.WSSendQueueSize)
	}

	if cfg.HandshakeRate, err = floatVar(getenv, "HANDSHAKE_RATE", 1); err != nil {
		return nil, err
	}
	if cfg.HandshakeBurst, err = intVar(getenv, "HANDSHAKE_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.MessageSendRate, err = floatVar(getenv, "MESSAGE_SEND_RATE", 5); err != nil {
		return nil, err
	}
	if cfg.MessageSendBurst, err = intVar(getenv, "MESSAGE_SEND_BURST", 20); err != nil {
		return nil, err
	}

	if cfg.ShutdownGracePeriod, err = durationVar(getenv, "SHUTDOWN_GRACE_PERIOD", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func intVar(getenv func(string) string, name string, def int) (int, error) {
	raw := getenv(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}

func floatVar(getenv func(string) string, name string, def float64) (float64, error) {
	raw := getenv(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", name, v)
	}
	return v, nil
}

func durationVar(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	raw := getenv(name)
	if raw == "" {
		return def, nil
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}
