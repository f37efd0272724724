package configs

import (
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	cfg, err := loadFrom(env(nil))
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreMemory)
	}
	if cfg.JWTSecret == "" {
		t.Error("JWTSecret is empty in development")
	}
	if cfg.WSIdleTimeout != 60*time.Second || cfg.WSSendQueueSize != 256 {
		t.Errorf("websocket settings = %s/%d, want 1m0s/256", cfg.WSIdleTimeout, cfg.WSSendQueueSize)
	}
}

func TestLoadProduction(t *testing.T) {
	cfg, err := loadFrom(env(map[string]string{
		"ENVIRONMENT":     "production",
		"JWT_SECRET":      "s3cret",
		"DATABASE_URL":    "postgres://localhost/dmchat",
		"ALLOWED_ORIGINS": "https://a.example, ,https://b.example",
		"WS_IDLE_TIMEOUT": "90s",
	}))
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.StoreDriver != StorePostgres {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StorePostgres)
	}
	if got := strings.Join(cfg.AllowedOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if cfg.WSIdleTimeout != 90*time.Second {
		t.Errorf("WSIdleTimeout = %s, want 1m30s", cfg.WSIdleTimeout)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"production without secret", map[string]string{"ENVIRONMENT": "production", "DATABASE_URL": "postgres://x"}},
		{"production memory store", map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "s", "STORE_DRIVER": "memory"}},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"privileged port", map[string]string{"PORT": "80"}},
		{"bad port", map[string]string{"PORT": "eighty"}},
		{"bucket without endpoint", map[string]string{"S3_BUCKET_NAME": "images"}},
		{"bucket without keys", map[string]string{"S3_BUCKET_NAME": "images", "S3_ENDPOINT": "https://s3.example"}},
		{"short idle timeout", map[string]string{"WS_IDLE_TIMEOUT": "500ms"}},
		{"empty send queue", map[string]string{"WS_SEND_QUEUE": "0"}},
		{"negative rate", map[string]string{"MESSAGE_SEND_RATE": "-1"}},
		{"bad duration", map[string]string{"SHUTDOWN_GRACE_PERIOD": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadFrom(env(tt.vars)); err == nil {
				t.Error("loadFrom() error = nil, want an error")
			}
		})
	}
}
