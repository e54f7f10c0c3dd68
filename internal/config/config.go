package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Tracing    TracingConfig
	SMTP       SMTPConfig
	Queue      QueueConfig
	Webhook    WebhookConfig
	Provider   ProviderConfig
	Automation AutomationConfig
	Workflow   WorkflowConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	WebhookLogFilePath string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	LockBackend        string // "redis" or "memory"
	JwtSecret          string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

type DatabaseConfig struct {
	Connection      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

type QueueConfig struct {
	Store              string // "postgres" or "memory"
	Concurrency        int
	PollInterval       time.Duration
	JobTimeout         time.Duration
	DefaultMaxAttempts int
	RetainCompleted    time.Duration
}

type WebhookConfig struct {
	Timeout      time.Duration // how long a webhook-pending request waits
	ReplayWindow time.Duration
	Ledger       string // "memory" or "redis"
	Secrets      map[string]string
}

type ProviderConfig struct {
	APITimeout       time.Duration
	RateLimitPerSec  float64
	RateLimitBurst   int
	BreakerFailures  int
	BreakerOpenFor   time.Duration
	CredentialHeader string
}

type AutomationConfig struct {
	Enabled       bool
	ChromePath    string
	Headless      bool
	StepTimeout   time.Duration
	TotalTimeout  time.Duration
	ScreenshotDir string
}

type WorkflowConfig struct {
	DefaultMaxAttempts       int
	ManualConfirmationWindow time.Duration
	LockTTL                  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WebhookLogFilePath: getEnv("WEBHOOK_LOG_FILE_PATH", "logs/webhook.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			LockBackend:        getEnv("LOCK_BACKEND", "memory"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection:      getEnv("DB_CONNECTION_STRING", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "cancelflow-backend"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "CancelFlow"),
		},
		Queue: QueueConfig{
			Store:              getEnv("QUEUE_STORE", "postgres"),
			Concurrency:        getEnvAsInt("QUEUE_CONCURRENCY", 5),
			PollInterval:       getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
			JobTimeout:         getEnvAsDuration("QUEUE_JOB_TIMEOUT", 2*time.Minute),
			DefaultMaxAttempts: getEnvAsInt("QUEUE_DEFAULT_MAX_ATTEMPTS", 3),
			RetainCompleted:    getEnvAsDuration("QUEUE_RETAIN_COMPLETED", 7*24*time.Hour),
		},
		Webhook: WebhookConfig{
			Timeout:      getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Minute),
			ReplayWindow: getEnvAsDuration("WEBHOOK_REPLAY_WINDOW", 5*time.Minute),
			Ledger:       getEnv("WEBHOOK_LEDGER", "memory"),
			Secrets:      parseSecrets(getEnv("WEBHOOK_SECRETS", "")),
		},
		Provider: ProviderConfig{
			APITimeout:       getEnvAsDuration("PROVIDER_API_TIMEOUT", 30*time.Second),
			RateLimitPerSec:  getEnvAsFloat("PROVIDER_RATE_LIMIT", 5),
			RateLimitBurst:   getEnvAsInt("PROVIDER_RATE_BURST", 10),
			BreakerFailures:  getEnvAsInt("PROVIDER_BREAKER_FAILURES", 5),
			BreakerOpenFor:   getEnvAsDuration("PROVIDER_BREAKER_OPEN_FOR", 30*time.Second),
			CredentialHeader: getEnv("PROVIDER_CREDENTIAL_HEADER", "Authorization"),
		},
		Automation: AutomationConfig{
			Enabled:       getEnvAsBool("AUTOMATION_ENABLED", false),
			ChromePath:    getEnv("CHROME_PATH", ""),
			Headless:      getEnvAsBool("AUTOMATION_HEADLESS", true),
			StepTimeout:   getEnvAsDuration("AUTOMATION_STEP_TIMEOUT", 15*time.Second),
			TotalTimeout:  getEnvAsDuration("AUTOMATION_TOTAL_TIMEOUT", 90*time.Second),
			ScreenshotDir: getEnv("AUTOMATION_SCREENSHOT_DIR", "screenshots"),
		},
		Workflow: WorkflowConfig{
			DefaultMaxAttempts:       getEnvAsInt("CANCELLATION_MAX_ATTEMPTS", 3),
			ManualConfirmationWindow: getEnvAsDuration("MANUAL_CONFIRMATION_WINDOW", 72*time.Hour),
			LockTTL:                  getEnvAsDuration("REQUEST_LOCK_TTL", 2*time.Minute),
		},
	}
}

// parseSecrets reads "netflix=abc,spotify=def" into a provider keyed map.
// Individual WEBHOOK_SECRET_<PROVIDER> variables override the list.
func parseSecrets(raw string) map[string]string {
	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, secret, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || secret == "" {
			continue
		}
		secrets[strings.ToLower(name)] = secret
	}
	for _, env := range os.Environ() {
		key, value, _ := strings.Cut(env, "=")
		if name, ok := strings.CutPrefix(key, "WEBHOOK_SECRET_"); ok && value != "" {
			secrets[strings.ToLower(name)] = value
		}
	}
	return secrets
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or bare milliseconds ("1500").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if ms, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
