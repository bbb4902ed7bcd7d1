package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrDatabaseURLMissing はDATABASE_URLが必要なモードで未設定であることを示す。
var ErrDatabaseURLMissing = errors.New("required environment variable is not set: DATABASE_URL")

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// CMS
	CMSBaseURL    string
	CMSTimeout    time.Duration
	CMSRevalidate time.Duration
	CMSPerPage    int
	CMSSSRFGuard  bool

	// News
	NewsFeedURL string
	NewsLimit   int

	// Database（serveでは任意、worker/migrateでは必須）
	DatabaseURL string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int

	// Snapshot
	SnapshotInterval      time.Duration
	SnapshotRetentionDays int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// CMS_BASE_URLが未設定でもエラーにしない（CMS呼び出し時にconfig_missingとして扱う）。
// 設定されている場合はhttp/httpsの絶対URLでなければエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.CMSBaseURL = strings.TrimRight(os.Getenv("CMS_BASE_URL"), "/")
	if cfg.CMSBaseURL != "" {
		if err := validateHTTPURL(cfg.CMSBaseURL); err != nil {
			return nil, fmt.Errorf("invalid CMS_BASE_URL: %w", err)
		}
	}

	cfg.NewsFeedURL = os.Getenv("NEWS_FEED_URL")
	if cfg.NewsFeedURL != "" {
		if err := validateHTTPURL(cfg.NewsFeedURL); err != nil {
			return nil, fmt.Errorf("invalid NEWS_FEED_URL: %w", err)
		}
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// Optional fields with defaults
	cfg.CMSTimeout = getEnvDuration("CMS_TIMEOUT", 10*time.Second)
	cfg.CMSRevalidate = getEnvDuration("CMS_REVALIDATE", time.Hour)
	cfg.CMSPerPage = getEnvInt("CMS_PER_PAGE", 100)
	cfg.CMSSSRFGuard = getEnvBool("CMS_SSRF_GUARD", true)
	cfg.NewsLimit = getEnvInt("NEWS_LIMIT", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.SnapshotInterval = getEnvDuration("SNAPSHOT_INTERVAL", time.Hour)
	cfg.SnapshotRetentionDays = getEnvInt("SNAPSHOT_RETENTION_DAYS", 90)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// RequireDatabase はDATABASE_URLが設定されていなければエラーを返す。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLMissing
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
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
