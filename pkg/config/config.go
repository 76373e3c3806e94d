package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Billing       BillingConfig
	Workflow      WorkflowConfig
	Reminders     ReminderConfig
	Notifications NotificationConfig
	SMTP          SMTPConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// JWTConfig holds the verification settings for tokens minted by the
// identity provider.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BillingConfig governs allocation and payment approval routing.
type BillingConfig struct {
	OverpaymentPolicy  string
	CurrencySymbol     string
	SummaryCacheTTL    time.Duration
	ApprovalWorkflowID int64
	ApprovalThreshold  decimal.Decimal
}

// WorkflowConfig toggles state machine behaviour.
type WorkflowConfig struct {
	NotificationsEnabled bool
	AutoAdvance          bool
	EmptyApproverPolicy  string
}

// ReminderConfig controls the daily due-date sweep.
type ReminderConfig struct {
	SweepEnabled bool
	Schedule     string
	Timezone     string
}

// Location resolves Timezone, falling back to UTC.
func (c ReminderConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load reminder timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Enabled bool
	Workers int
	Retries int
}

// SMTPConfig configures outgoing mail. An empty host disables SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Enabled:  v.GetBool("ENABLE_REDIS_CACHE"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Billing = BillingConfig{
		OverpaymentPolicy:  v.GetString("BILLING_OVERPAYMENT_POLICY"),
		CurrencySymbol:     v.GetString("BILLING_CURRENCY_SYMBOL"),
		SummaryCacheTTL:    parseDuration(v.GetString("BILLING_SUMMARY_CACHE_TTL"), 5*time.Minute),
		ApprovalWorkflowID: v.GetInt64("PAYMENT_APPROVAL_WORKFLOW_ID"),
		ApprovalThreshold:  parseDecimal(v.GetString("PAYMENT_APPROVAL_THRESHOLD"), decimal.Zero),
	}

	cfg.Workflow = WorkflowConfig{
		NotificationsEnabled: v.GetBool("WORKFLOW_NOTIFICATIONS_ENABLED"),
		AutoAdvance:          v.GetBool("WORKFLOW_AUTO_ADVANCE"),
		EmptyApproverPolicy:  v.GetString("WORKFLOW_EMPTY_APPROVER_POLICY"),
	}

	cfg.Reminders = ReminderConfig{
		SweepEnabled: v.GetBool("ENABLE_REMINDER_SWEEP"),
		Schedule:     v.GetString("REMINDER_SWEEP_SCHEDULE"),
		Timezone:     v.GetString("REMINDER_TIMEZONE"),
	}

	cfg.Notifications = NotificationConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers: v.GetInt("NOTIFICATION_WORKERS"),
		Retries: v.GetInt("NOTIFICATION_RETRIES"),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		Sender:   v.GetString("SMTP_SENDER"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_billing")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_REDIS_CACHE", true)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BILLING_OVERPAYMENT_POLICY", "record")
	v.SetDefault("BILLING_CURRENCY_SYMBOL", "₱")
	v.SetDefault("BILLING_SUMMARY_CACHE_TTL", "5m")
	v.SetDefault("PAYMENT_APPROVAL_WORKFLOW_ID", 0)
	v.SetDefault("PAYMENT_APPROVAL_THRESHOLD", "0")

	v.SetDefault("WORKFLOW_NOTIFICATIONS_ENABLED", true)
	v.SetDefault("WORKFLOW_AUTO_ADVANCE", false)
	v.SetDefault("WORKFLOW_EMPTY_APPROVER_POLICY", "auto_pass")

	v.SetDefault("ENABLE_REMINDER_SWEEP", false)
	v.SetDefault("REMINDER_SWEEP_SCHEDULE", "0 7 * * *")
	v.SetDefault("REMINDER_TIMEZONE", "Asia/Manila")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_RETRIES", 3)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_SENDER", "billing@localhost")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseDecimal(raw string, fallback decimal.Decimal) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
