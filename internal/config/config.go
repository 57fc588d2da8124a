package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 認証モード
const (
	// AuthModePlatform はプラットフォームの認証APIでBearerトークンを検証する。
	AuthModePlatform = "platform"
	// AuthModeBypass は固定ユーザーIDで全リクエストを認証済みとして扱う（ローカル開発用）。
	AuthModeBypass = "bypass"
)

// ダッシュボードのデータソース
const (
	// DashboardSourceLive はPostgreSQLから取得する。
	DashboardSourceLive = "live"
	// DashboardSourceFixture はYAMLフィクスチャから取得する（UI確認用）。
	DashboardSourceFixture = "fixture"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Platform（認証・ストレージ）
	PlatformURL            string
	PlatformAnonKey        string
	PlatformServiceRoleKey string
	PlatformTimeout        time.Duration
	AudioBucket            string

	// Auth
	AuthMode     string
	BypassUserID string

	// Dashboard
	DashboardSource      string
	DashboardFixturePath string

	// Rate Limit（req/min）
	RateLimitGeneral       int
	RateLimitSessionCreate int

	// Reconcile
	ReconcileInterval      time.Duration
	ReconcileOrphanAfter   time.Duration
	ReconcileMaxConcurrent int
	ReconcileBatchSize     int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は不足分をまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.AuthMode = getEnvString("AUTH_MODE", AuthModePlatform)
	if cfg.AuthMode != AuthModePlatform && cfg.AuthMode != AuthModeBypass {
		return nil, fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModePlatform, AuthModeBypass, cfg.AuthMode)
	}

	cfg.DashboardSource = getEnvString("DASHBOARD_SOURCE", DashboardSourceLive)
	if cfg.DashboardSource != DashboardSourceLive && cfg.DashboardSource != DashboardSourceFixture {
		return nil, fmt.Errorf("DASHBOARD_SOURCE must be %q or %q, got %q", DashboardSourceLive, DashboardSourceFixture, cfg.DashboardSource)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.PlatformURL = strings.TrimRight(os.Getenv("PLATFORM_URL"), "/")
	if cfg.PlatformURL == "" {
		missing = append(missing, "PLATFORM_URL")
	}

	cfg.PlatformServiceRoleKey = os.Getenv("PLATFORM_SERVICE_ROLE_KEY")
	if cfg.PlatformServiceRoleKey == "" {
		missing = append(missing, "PLATFORM_SERVICE_ROLE_KEY")
	}

	// bypassモードではトークン検証を行わないためanon keyは不要
	cfg.PlatformAnonKey = os.Getenv("PLATFORM_ANON_KEY")
	if cfg.PlatformAnonKey == "" && cfg.AuthMode == AuthModePlatform {
		missing = append(missing, "PLATFORM_ANON_KEY")
	}

	cfg.BypassUserID = os.Getenv("BYPASS_USER_ID")
	if cfg.BypassUserID == "" && cfg.AuthMode == AuthModeBypass {
		missing = append(missing, "BYPASS_USER_ID")
	}

	cfg.DashboardFixturePath = os.Getenv("DASHBOARD_FIXTURE_PATH")
	if cfg.DashboardFixturePath == "" && cfg.DashboardSource == DashboardSourceFixture {
		missing = append(missing, "DASHBOARD_FIXTURE_PATH")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PlatformTimeout = getEnvDuration("PLATFORM_TIMEOUT", 10*time.Second)
	cfg.AudioBucket = getEnvString("AUDIO_BUCKET", "rhetor-audio")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSessionCreate = getEnvInt("RATE_LIMIT_SESSION_CREATE", 10)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", time.Hour)
	cfg.ReconcileOrphanAfter = getEnvDuration("RECONCILE_ORPHAN_AFTER", 0)
	cfg.ReconcileMaxConcurrent = getEnvInt("RECONCILE_MAX_CONCURRENT", 5)
	cfg.ReconcileBatchSize = getEnvInt("RECONCILE_BATCH_SIZE", 100)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

// ReconcileEnabled は孤立セッションの照合ジョブが有効かを返す。
// RECONCILE_ORPHAN_AFTERが0の場合、孤立行はそのまま残す。
func (c *Config) ReconcileEnabled() bool {
	return c.ReconcileOrphanAfter > 0
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
