// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/pubcaster/internal/relay"
)

// ErrDatabaseURLRequired はDATABASE_URLが必要なコマンドで未設定の場合のエラー。
var ErrDatabaseURLRequired = errors.New("DATABASE_URL is required for this command")

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// Nostr
	Relays            []string
	DefaultIdentifier string
	RelayQueryTimeout time.Duration

	// Build
	BuildTimeout      time.Duration
	PostLimit         int
	ArticleLimit      int
	LiveActivityLimit int
	EnrichConcurrency int

	// Profile cache
	ProfileCacheSize int
	ProfileCacheTTL  time.Duration

	// Enclosure probe
	EnclosureProbe        bool
	EnclosureProbeTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int

	// CORS
	CORSAllowedOrigin string

	// Snapshot storage (任意。serveでは未設定ならスナップショットを使わない)
	DatabaseURL           string
	RefreshInterval       time.Duration
	RefreshMaxConcurrent  int
	SnapshotRetentionDays int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込み、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = strings.TrimSuffix(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.Relays = getEnvList("NOSTR_RELAYS", relay.DefaultRelays)
	cfg.DefaultIdentifier = getEnvString("DEFAULT_IDENTIFIER", relay.DefaultIdentifier)
	cfg.RelayQueryTimeout = getEnvDuration("RELAY_QUERY_TIMEOUT", 10*time.Second)
	cfg.BuildTimeout = getEnvDuration("BUILD_TIMEOUT", 20*time.Second)
	cfg.PostLimit = getEnvInt("POST_LIMIT", 420)
	cfg.ArticleLimit = getEnvInt("ARTICLE_LIMIT", 100)
	cfg.LiveActivityLimit = getEnvInt("LIVE_ACTIVITY_LIMIT", 50)
	cfg.EnrichConcurrency = getEnvInt("ENRICH_CONCURRENCY", 8)
	cfg.ProfileCacheSize = getEnvInt("PROFILE_CACHE_SIZE", 1024)
	cfg.ProfileCacheTTL = getEnvDuration("PROFILE_CACHE_TTL", 10*time.Minute)
	cfg.EnclosureProbe = getEnvBool("ENCLOSURE_PROBE", false)
	cfg.EnclosureProbeTimeout = getEnvDuration("ENCLOSURE_PROBE_TIMEOUT", 5*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 15*time.Minute)
	cfg.RefreshMaxConcurrent = getEnvInt("REFRESH_MAX_CONCURRENT", 4)
	cfg.SnapshotRetentionDays = getEnvInt("SNAPSHOT_RETENTION_DAYS", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// RequireDatabase はDATABASE_URLが設定されていなければErrDatabaseURLRequiredを返す。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
