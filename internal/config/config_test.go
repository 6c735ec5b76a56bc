package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Security.RateLimit != 100 {
		t.Errorf("RateLimit = %d, want 100", cfg.Security.RateLimit)
	}
	if cfg.Hub.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.Hub.RetryAttempts)
	}
	if cfg.Hub.RetryDelay().Milliseconds() != 1000 {
		t.Errorf("RetryDelay = %s, want 1s", cfg.Hub.RetryDelay())
	}
	if cfg.Sync.IntervalSeconds != 300 || cfg.Metrics.IntervalSeconds != 60 {
		t.Errorf("intervals = %d/%d, want 300/60", cfg.Sync.IntervalSeconds, cfg.Metrics.IntervalSeconds)
	}
	if cfg.Satellite.APIPrefix != "api/satellite" {
		t.Errorf("APIPrefix = %q", cfg.Satellite.APIPrefix)
	}
	if !cfg.Satellite.Enabled || !cfg.Security.VerifySSL {
		t.Error("satellite endpoints and TLS verification must default to enabled")
	}
	if len(cfg.Security.Allowlist()) != 0 {
		t.Errorf("Allowlist() = %v, want empty", cfg.Security.Allowlist())
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UNICYHUB_URL", "https://hub.example.com/")
	t.Setenv("UNICYHUB_API_KEY", "secret123")
	t.Setenv("SATELLITE_RATE_LIMIT", "0")
	t.Setenv("SATELLITE_IP_WHITELIST", " 10.0.0.0/24 , ,192.168.1.7")
	t.Setenv("SATELLITE_SYNC_INTERVAL", "90")
	t.Setenv("SATELLITE_API_PREFIX", "/custom/prefix/")
	t.Setenv("SATELLITE_VERIFY_SSL", "false")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.URL != "https://hub.example.com" {
		t.Errorf("Hub.URL = %q, trailing slash should be trimmed", cfg.Hub.URL)
	}
	if cfg.Hub.APIKey.Reveal() != "secret123" {
		t.Errorf("Hub.APIKey not loaded")
	}
	if cfg.Security.RateLimit != 0 {
		t.Errorf("explicit 0 must disable rate limiting, got %d", cfg.Security.RateLimit)
	}
	got := cfg.Security.Allowlist()
	if len(got) != 2 || got[0] != "10.0.0.0/24" || got[1] != "192.168.1.7" {
		t.Errorf("Allowlist() = %v", got)
	}
	if cfg.Sync.IntervalSeconds != 90 {
		t.Errorf("Sync.IntervalSeconds = %d", cfg.Sync.IntervalSeconds)
	}
	if cfg.Satellite.APIPrefix != "custom/prefix" {
		t.Errorf("APIPrefix = %q", cfg.Satellite.APIPrefix)
	}
	if cfg.Security.VerifySSL {
		t.Error("VerifySSL should be false")
	}
	if err := cfg.RequireHub(); err != nil {
		t.Errorf("RequireHub() error = %v", err)
	}
}

func TestRequireHub(t *testing.T) {
	tests := []struct {
		name    string
		hub     HubConfig
		wantKey string
	}{
		{name: "missing url", hub: HubConfig{APIKey: "k"}, wantKey: "hub.url"},
		{name: "missing key", hub: HubConfig{URL: "https://hub"}, wantKey: "hub.api_key"},
		{name: "complete", hub: HubConfig{URL: "https://hub", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Hub: tt.hub}
			err := cfg.RequireHub()
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("RequireHub() error = %v", err)
				}
				return
			}
			var missing ErrMissing
			if !errors.As(err, &missing) || missing.Key != tt.wantKey {
				t.Fatalf("RequireHub() error = %v, want missing %s", err, tt.wantKey)
			}
		})
	}
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("SATELLITE_STORE", "etcd")
	if _, err := Load(viper.New()); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestSecret(t *testing.T) {
	s := Secret("secret123")
	if !s.Equal("secret123") {
		t.Error("Equal should accept the same value")
	}
	if s.Equal("wrong") || s.Equal("") {
		t.Error("Equal should reject other values")
	}
	if Secret("").Equal("") {
		t.Error("an empty secret must never validate")
	}
	if strings.Contains(s.String(), "secret123") {
		t.Errorf("String() leaks the secret: %q", s.String())
	}
	if b, _ := s.MarshalJSON(); strings.Contains(string(b), "secret123") {
		t.Errorf("MarshalJSON() leaks the secret: %s", b)
	}
}
