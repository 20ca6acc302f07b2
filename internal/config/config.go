package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Spotify
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string
	SpotifyTimeout      time.Duration

	// Identity oracle（認証システムの管理API）
	AuthAPIBaseURL string
	AuthAPIKey     string
	AuthAPITimeout time.Duration

	// Webhook
	WebhookSecret string

	// Scheduler
	Timezone        string
	RefreshInterval time.Duration
	CleanupInterval time.Duration
	JobTimeout      time.Duration

	// Group
	ExemptGroupID string

	// Rate Limit（req/min/identity）
	RateLimitGeneral    int
	RateLimitAccountReg int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（未存在は無視）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SpotifyClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	if cfg.SpotifyClientID == "" {
		missing = append(missing, "SPOTIFY_CLIENT_ID")
	}

	cfg.SpotifyClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")
	if cfg.SpotifyClientSecret == "" {
		missing = append(missing, "SPOTIFY_CLIENT_SECRET")
	}

	cfg.SpotifyRedirectURL = os.Getenv("SPOTIFY_REDIRECT_URL")
	if cfg.SpotifyRedirectURL == "" {
		missing = append(missing, "SPOTIFY_REDIRECT_URL")
	}

	cfg.AuthAPIBaseURL = os.Getenv("AUTH_API_BASE_URL")
	if cfg.AuthAPIBaseURL == "" {
		missing = append(missing, "AUTH_API_BASE_URL")
	}

	cfg.AuthAPIKey = os.Getenv("AUTH_API_KEY")
	if cfg.AuthAPIKey == "" {
		missing = append(missing, "AUTH_API_KEY")
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SpotifyTimeout = getEnvDuration("SPOTIFY_TIMEOUT", 10*time.Second)
	cfg.AuthAPITimeout = getEnvDuration("AUTH_API_TIMEOUT", 10*time.Second)
	cfg.Timezone = getEnvString("TIMEZONE", "America/New_York")
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.JobTimeout = getEnvDuration("JOB_TIMEOUT", 5*time.Minute)
	cfg.ExemptGroupID = getEnvString("EXEMPT_GROUP_ID", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAccountReg = getEnvInt("RATE_LIMIT_ACCOUNT_REG", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// タイムゾーン名の妥当性は起動時に検証する
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location は設定タイムゾーンの*time.Locationを返す。
// Loadで検証済みのタイムゾーン名が前提。解決できない場合はUTCにフォールバックする。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
