// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// デフォルト値
const (
	DefaultTMDBBaseURL      = "https://api.themoviedb.org/3"
	DefaultTMDBImageBaseURL = "https://image.tmdb.org/t/p"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
// TMDB APIキーのみConfigファイルの監視により実行時に差し替わることがある。
type Config struct {
	// Database（空の場合はインメモリストアで動作する）
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// TMDB
	TMDBAPIKey          string
	TMDBBaseURL         string
	TMDBImageBaseURL    string
	TMDBTimeout         time.Duration
	TMDBRateLimit       int // 1秒あたりの最大リクエスト数
	TMDBMaxResponseSize int64

	// Query Cache
	QueryStaleTime time.Duration
	QueryGCTime    time.Duration

	// Workspace
	WorkspaceIdleTimeout time.Duration

	// Rate Limit
	RateLimitGeneral   int
	RateLimitFavorites int

	// Worker
	SessionCleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// ConfigFile はYAML設定ファイルのパス（CONFIG_FILE）。未指定の場合は空文字。
	ConfigFile string
}

// Load は環境変数（およびCONFIG_FILEで指定されたYAMLファイル）からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 値の優先順位は 環境変数 > YAMLファイル > デフォルト値。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ConfigFile = os.Getenv("CONFIG_FILE")
	file := &FileConfig{}
	if cfg.ConfigFile != "" {
		f, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		file = f
	}

	// Required fields
	var missing []string

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// TMDB（APIキー未設定は起動を妨げない）
	cfg.TMDBAPIKey = getEnvString("TMDB_API_KEY", file.TMDB.APIKey)
	cfg.TMDBBaseURL = strings.TrimRight(getEnvString("TMDB_BASE_URL", orDefault(file.TMDB.BaseURL, DefaultTMDBBaseURL)), "/")
	cfg.TMDBImageBaseURL = strings.TrimRight(getEnvString("TMDB_IMAGE_BASE_URL", orDefault(file.TMDB.ImageBaseURL, DefaultTMDBImageBaseURL)), "/")
	cfg.TMDBTimeout = getEnvDuration("TMDB_TIMEOUT", orDefaultDuration(file.TMDB.Timeout, 10*time.Second))
	cfg.TMDBRateLimit = getEnvInt("TMDB_RATE_LIMIT", orDefaultInt(file.TMDB.RateLimit, 20))
	cfg.TMDBMaxResponseSize = getEnvInt64("TMDB_MAX_RESPONSE_SIZE", 5242880)

	// Optional fields with defaults
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.QueryStaleTime = getEnvDuration("QUERY_STALE_TIME", orDefaultDuration(file.Query.StaleTime, time.Hour))
	cfg.QueryGCTime = getEnvDuration("QUERY_GC_TIME", orDefaultDuration(file.Query.GCTime, 30*time.Minute))
	cfg.WorkspaceIdleTimeout = getEnvDuration("WORKSPACE_IDLE_TIMEOUT", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitFavorites = getEnvInt("RATE_LIMIT_FAVORITES", 30)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// Warnings は起動は可能だが機能が縮退する設定を列挙する。
// 起動時に1回だけログ出力することを想定している。
func (c *Config) Warnings() []string {
	var warnings []string
	if c.TMDBAPIKey == "" {
		warnings = append(warnings, "TMDB_API_KEY is not set: every catalog request will fail until it is configured")
	}
	if c.DatabaseURL == "" {
		warnings = append(warnings, "DATABASE_URL is not set: users and sessions are kept in memory")
	}
	return warnings
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v Duration, def time.Duration) time.Duration {
	if v > 0 {
		return time.Duration(v)
	}
	return def
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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
