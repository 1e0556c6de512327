package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/pubcaster/internal/relay"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("BASE_URL", "http://localhost:8080/")
}

// chdirTemp は.envが存在しない一時ディレクトリへ移動する。
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_RequiredVarsSet_ReturnsConfig(t *testing.T) {
	chdirTemp(t)
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
}

func TestLoad_MissingBaseURL(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BASE_URL is missing")
	}
	if !strings.Contains(err.Error(), "BASE_URL") {
		t.Errorf("error should mention BASE_URL, got %v", err)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	chdirTemp(t)
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if !reflect.DeepEqual(cfg.Relays, relay.DefaultRelays) {
		t.Errorf("Relays = %v, want %v", cfg.Relays, relay.DefaultRelays)
	}
	if cfg.DefaultIdentifier != relay.DefaultIdentifier {
		t.Errorf("DefaultIdentifier = %q", cfg.DefaultIdentifier)
	}
	if cfg.RelayQueryTimeout != 10*time.Second {
		t.Errorf("RelayQueryTimeout = %v, want 10s", cfg.RelayQueryTimeout)
	}
	if cfg.BuildTimeout != 20*time.Second {
		t.Errorf("BuildTimeout = %v, want 20s", cfg.BuildTimeout)
	}
	if cfg.PostLimit != 420 || cfg.ArticleLimit != 100 || cfg.LiveActivityLimit != 50 {
		t.Errorf("limits = %d/%d/%d, want 420/100/50", cfg.PostLimit, cfg.ArticleLimit, cfg.LiveActivityLimit)
	}
	if cfg.EnrichConcurrency != 8 {
		t.Errorf("EnrichConcurrency = %d, want 8", cfg.EnrichConcurrency)
	}
	if cfg.ProfileCacheSize != 1024 || cfg.ProfileCacheTTL != 10*time.Minute {
		t.Errorf("profile cache = %d/%v, want 1024/10m", cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	}
	if cfg.EnclosureProbe {
		t.Error("EnclosureProbe should default to false")
	}
	if cfg.EnclosureProbeTimeout != 5*time.Second {
		t.Errorf("EnclosureProbeTimeout = %v, want 5s", cfg.EnclosureProbeTimeout)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.CORSAllowedOrigin != "*" {
		t.Errorf("CORSAllowedOrigin = %q, want *", cfg.CORSAllowedOrigin)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RefreshInterval != 15*time.Minute || cfg.RefreshMaxConcurrent != 4 {
		t.Errorf("refresh = %v/%d, want 15m/4", cfg.RefreshInterval, cfg.RefreshMaxConcurrent)
	}
	if cfg.SnapshotRetentionDays != 30 {
		t.Errorf("SnapshotRetentionDays = %d, want 30", cfg.SnapshotRetentionDays)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	chdirTemp(t)
	setRequiredEnvVars(t)
	t.Setenv("NOSTR_RELAYS", "wss://a.example, ,wss://b.example")
	t.Setenv("BUILD_TIMEOUT", "45s")
	t.Setenv("ENCLOSURE_PROBE", "true")
	t.Setenv("POST_LIMIT", "50")
	t.Setenv("DATABASE_URL", "postgres://localhost/pubcaster")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if want := []string{"wss://a.example", "wss://b.example"}; !reflect.DeepEqual(cfg.Relays, want) {
		t.Errorf("Relays = %v, want %v", cfg.Relays, want)
	}
	if cfg.BuildTimeout != 45*time.Second {
		t.Errorf("BuildTimeout = %v, want 45s", cfg.BuildTimeout)
	}
	if !cfg.EnclosureProbe {
		t.Error("EnclosureProbe should be true")
	}
	if cfg.PostLimit != 50 {
		t.Errorf("PostLimit = %d, want 50", cfg.PostLimit)
	}
	if err := cfg.RequireDatabase(); err != nil {
		t.Errorf("RequireDatabase() = %v, want nil", err)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	chdirTemp(t)
	setRequiredEnvVars(t)
	t.Setenv("POST_LIMIT", "many")
	t.Setenv("BUILD_TIMEOUT", "soon")
	t.Setenv("ENCLOSURE_PROBE", "perhaps")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.PostLimit != 420 {
		t.Errorf("PostLimit = %d, want default 420", cfg.PostLimit)
	}
	if cfg.BuildTimeout != 20*time.Second {
		t.Errorf("BuildTimeout = %v, want default 20s", cfg.BuildTimeout)
	}
	if cfg.EnclosureProbe {
		t.Error("EnclosureProbe should fall back to false")
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("BASE_URL", "")
	os.Unsetenv("BASE_URL")
	t.Setenv("SERVER_PORT", "9999")

	content := "BASE_URL=https://pod.example\nSERVER_PORT=1234\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("BASE_URL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.BaseURL != "https://pod.example" {
		t.Errorf("BaseURL = %q, want value from .env", cfg.BaseURL)
	}
	if cfg.ServerPort != "9999" {
		t.Errorf("ServerPort = %q, existing env must win over .env", cfg.ServerPort)
	}
}

func TestRequireDatabase_Missing(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireDatabase(); !errors.Is(err, ErrDatabaseURLRequired) {
		t.Errorf("RequireDatabase() = %v, want ErrDatabaseURLRequired", err)
	}
}
