package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret     string
	TokenLifetime time.Duration

	// Due-task sweep
	SweepInterval time.Duration
	SweepHorizon  time.Duration

	// Live stream
	StreamWaitTimeout time.Duration
	StreamPacing      time.Duration
	StreamRetryHint   time.Duration
	MailboxMaxDepth   int

	// Telegram
	TelegramBotToken string

	// SMTP
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SMTPTLS       bool
	OperatorEmail string

	// Webhook
	WebhookURLs    []string
	WebhookTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogFormat string
	LogLevel  string

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenLifetime = getEnvDuration("TOKEN_LIFETIME", 30*time.Minute)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 12*time.Hour)
	cfg.SweepHorizon = getEnvDuration("SWEEP_HORIZON", 24*time.Hour)
	cfg.StreamWaitTimeout = getEnvDuration("STREAM_WAIT_TIMEOUT", 30*time.Second)
	cfg.StreamPacing = getEnvDuration("STREAM_PACING", time.Second)
	cfg.StreamRetryHint = getEnvDuration("STREAM_RETRY_HINT", 15*time.Second)
	cfg.MailboxMaxDepth = getEnvInt("MAILBOX_MAX_DEPTH", 1000)
	cfg.TelegramBotToken = getEnvString("TELEGRAM_BOT_TOKEN", "")
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvString("SMTP_PORT", "587")
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "")
	cfg.SMTPTLS = getEnvBool("SMTP_TLS", false)
	cfg.OperatorEmail = getEnvString("OPERATOR_EMAIL", "")
	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})

	webhooks := getEnvList("WEBHOOK_URLS", nil)
	for _, raw := range webhooks {
		if err := validateWebhookURL(raw); err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_URLS entry: %w", err)
		}
	}
	cfg.WebhookURLs = webhooks

	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive: %s", cfg.SweepInterval)
	}

	return cfg, nil
}

// validateWebhookURL はhttp(s)の絶対URLであることを確認する。
// 宛先IPの検証は送信時にSSRFガードが行う。
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
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
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
