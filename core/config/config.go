package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type DockerConfig struct {
	Image        string
	Network      string
	InternalPort int
	CallTimeout  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type JanitorConfig struct {
	Interval       time.Duration
	ExportLeadTime time.Duration
}

type Config struct {
	Environment   string
	ListenAddr    string
	BaseDomain    string
	PublicHost    string
	EncryptionKey string
	OTLPEndpoint  string
	Database      DatabaseConfig
	Stripe        StripeConfig
	Docker        DockerConfig
	SMTP          SMTPConfig
	Janitor       JanitorConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := &Config{
		Environment:   getEnv("APP_ENV", "development"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		BaseDomain:    getEnv("WORKSPACE_BASE_DOMAIN", "xcommand.cloud"),
		PublicHost:    getEnv("PUBLIC_WORKSPACE_HOST", "xcommand.cloud"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "devkey"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "postgres"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			Name:     getEnv("POSTGRES_DB", "xcmd"),
			User:     getEnv("POSTGRES_USER", "xcmd"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "https://app.xcommand.cloud/ready.html"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "https://app.xcommand.cloud/pay.html"),
		},
		Docker: DockerConfig{
			Image:        getEnv("N8N_IMAGE", "n8nio/n8n:latest"),
			Network:      getEnv("DOCKER_NETWORK", "n8n_web"),
			InternalPort: getEnvInt("N8N_INTERNAL_PORT", 5678),
			CallTimeout:  getEnvDuration("DOCKER_CALL_TIMEOUT", 60*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "workspaces@xcommand.cloud"),
		},
		Janitor: JanitorConfig{
			Interval:       getEnvDuration("JANITOR_INTERVAL", 30*time.Second),
			ExportLeadTime: getEnvDuration("EXPORT_LEAD_TIME", 10*time.Minute),
		},
	}

	if cfg.IsProduction() && cfg.Database.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required in production")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}
