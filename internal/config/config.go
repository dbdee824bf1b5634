package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MemoryDatabaseURL はインメモリストアで起動する場合のDATABASE_URL。
const MemoryDatabaseURL = "memory://"

// defaultAllowedScopes はALLOWED_SCOPES未指定時に許可するスコープ。
const defaultAllowedScopes = "read write email profile offline_access"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Password
	BcryptCost int

	// OAuth2
	AllowedScopes []string
	GrantTTL      time.Duration

	// Rate Limit（req/min/IP）
	RateLimitRPC   int
	RateLimitLogin int

	// Cleanup
	CleanupInterval time.Duration
	GrantRetention  time.Duration
	TokenRetention  time.Duration

	// Server
	ServerPort string

	// CORS（空の場合は無効）
	CORSAllowedOrigin string
}

// UseMemoryStore はPostgreSQLの代わりにインメモリストアを使用するかを返す。
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", bcrypt.DefaultCost)
	cfg.AllowedScopes = splitScopes(getEnvString("ALLOWED_SCOPES", defaultAllowedScopes))
	cfg.GrantTTL = getEnvPositiveDuration("GRANT_TTL", 100*time.Second)
	cfg.RateLimitRPC = getEnvPositiveInt("RATE_LIMIT_RPC", 600)
	cfg.RateLimitLogin = getEnvPositiveInt("RATE_LIMIT_LOGIN", 20)
	cfg.CleanupInterval = getEnvPositiveDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.GrantRetention = getEnvPositiveDuration("GRANT_RETENTION", 24*time.Hour)
	cfg.TokenRetention = getEnvPositiveDuration("TOKEN_RETENTION", 720*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if len(cfg.AllowedScopes) == 0 {
		return nil, fmt.Errorf("ALLOWED_SCOPES must contain at least one scope")
	}

	return cfg, nil
}

// splitScopes はカンマまたは空白区切りのスコープ一覧を分割する。
func splitScopes(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
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

func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
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

func getEnvPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	if d := getEnvDuration(key, defaultVal); d > 0 {
		return d
	}
	return defaultVal
}
