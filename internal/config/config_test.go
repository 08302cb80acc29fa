package config

import (
	"os"
	"testing"
	"time"
)

func unsetAll(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			_ = os.Unsetenv(k)
			t.Cleanup(func() { _ = os.Setenv(k, v) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetAll(t, "PORT", "ENV", "DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT", "CORS_ORIGIN",
		"STUDIO_CONFIG_PATH", "TAKE_DEBOUNCE_MS", "AUTONEXT_GUARD_MS", "LOOKAHEAD_SETTLE_MS", "BLUEPRINT_CONFIG_TTL")

	cfg := Load()

	if cfg.Port != "4000" {
		t.Errorf("Expected Port to be '4000', got '%s'", cfg.Port)
	}
	if cfg.DatabaseURL != "file:./playout.db" {
		t.Errorf("Expected DatabaseURL default, got '%s'", cfg.DatabaseURL)
	}
	if cfg.TakeDebounce != time.Second {
		t.Errorf("Expected TakeDebounce 1s, got %v", cfg.TakeDebounce)
	}
	if cfg.AutoNextGuard != time.Second {
		t.Errorf("Expected AutoNextGuard 1s, got %v", cfg.AutoNextGuard)
	}
	if cfg.LookaheadSettle != 2*time.Second {
		t.Errorf("Expected LookaheadSettle 2s, got %v", cfg.LookaheadSettle)
	}
	if cfg.BlueprintConfigTTL != 5*time.Minute {
		t.Errorf("Expected BlueprintConfigTTL 5m, got %v", cfg.BlueprintConfigTTL)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode by default")
	}
}

func TestLoad_CustomEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "file:./prod.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("CORS_ORIGIN", "http://example.com")
	t.Setenv("STUDIO_CONFIG_PATH", "/etc/playout/studios.toml")
	t.Setenv("TAKE_DEBOUNCE_MS", "250")
	t.Setenv("AUTONEXT_GUARD_MS", "0")
	t.Setenv("LOOKAHEAD_SETTLE_MS", "1500")
	t.Setenv("BLUEPRINT_CONFIG_TTL", "30s")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Expected Port to be '8080', got '%s'", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("Expected production mode")
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("Unexpected logging config %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.StudioConfigPath != "/etc/playout/studios.toml" {
		t.Errorf("Unexpected StudioConfigPath %q", cfg.StudioConfigPath)
	}
	if cfg.TakeDebounce != 250*time.Millisecond {
		t.Errorf("Expected TakeDebounce 250ms, got %v", cfg.TakeDebounce)
	}
	if cfg.AutoNextGuard != 0 {
		t.Errorf("Expected AutoNextGuard 0, got %v", cfg.AutoNextGuard)
	}
	if cfg.LookaheadSettle != 1500*time.Millisecond {
		t.Errorf("Expected LookaheadSettle 1.5s, got %v", cfg.LookaheadSettle)
	}
	if cfg.BlueprintConfigTTL != 30*time.Second {
		t.Errorf("Expected BlueprintConfigTTL 30s, got %v", cfg.BlueprintConfigTTL)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TAKE_DEBOUNCE_MS", "soon")
	t.Setenv("BLUEPRINT_CONFIG_TTL", "forever")

	cfg := Load()

	if cfg.TakeDebounce != time.Second {
		t.Errorf("Expected default TakeDebounce, got %v", cfg.TakeDebounce)
	}
	if cfg.BlueprintConfigTTL != 5*time.Minute {
		t.Errorf("Expected default BlueprintConfigTTL, got %v", cfg.BlueprintConfigTTL)
	}
}
