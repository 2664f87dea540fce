package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Breez   BreezConfig
	Webhook WebhookConfig
	Kafka   KafkaConfig
	Redis   RedisConfig
	Shopify ShopifyConfig
	Sync    SyncConfig
}

type ServerConfig struct {
	Port         string
	APIKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type BreezConfig struct {
	APIKey     string
	Mnemonic   string
	Network    string
	WorkingDir string
}

type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Retries int
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	PaymentPending   string
	PaymentSucceeded string
	PaymentFailed    string
}

type RedisConfig struct {
	Addr string
}

type ShopifyConfig struct {
	Enabled       bool
	DBPath        string
	Domain        string
	AdminToken    string
	APIVersion    string
	WebhookSecret string
	LockTTL       time.Duration
}

type SyncConfig struct {
	Staleness        time.Duration
	HealthyInterval  time.Duration
	DegradedInterval time.Duration
	ErrorRetryDelay  time.Duration
	FailureCeiling   int
	Retention        time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			APIKey:       getEnv("API_SECRET", ""),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Breez: BreezConfig{
			APIKey:     getEnv("BREEZ_API_KEY", ""),
			Mnemonic:   getEnv("BREEZ_SEED_PHRASE", ""),
			Network:    getEnv("BREEZ_NETWORK", "mainnet"),
			WorkingDir: getEnv("BREEZ_WORKING_DIR", "~/.breez-api"),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("WEBHOOK_URL", ""),
			Secret:  getEnv("WEBHOOK_SECRET", ""),
			Timeout: time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
			Retries: getEnvInt("WEBHOOK_RETRIES", 3),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "")},
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				PaymentPending:   getEnv("KAFKA_TOPIC_PENDING", "payments.pending"),
				PaymentSucceeded: getEnv("KAFKA_TOPIC_SUCCEEDED", "payments.succeeded"),
				PaymentFailed:    getEnv("KAFKA_TOPIC_FAILED", "payments.failed"),
			},
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Shopify: ShopifyConfig{
			Enabled:       getEnvBool("SHOPIFY_ENABLED", false),
			DBPath:        getEnv("SHOPIFY_DB_PATH", "shopify_orders.db"),
			Domain:        getEnv("SHOPIFY_DOMAIN", ""),
			AdminToken:    getEnv("SHOPIFY_ADMIN_TOKEN", ""),
			APIVersion:    getEnv("SHOPIFY_API_VERSION", "2024-10"),
			WebhookSecret: getEnv("SHOPIFY_WEBHOOK_SECRET", ""),
			LockTTL:       time.Duration(getEnvInt("SHOPIFY_LOCK_TTL_MINUTES", 5)) * time.Minute,
		},
		Sync: SyncConfig{
			Staleness:        time.Duration(getEnvInt("SYNC_STALENESS_SECONDS", 30)) * time.Second,
			HealthyInterval:  time.Duration(getEnvInt("SYNC_HEALTHY_INTERVAL_SECONDS", 30)) * time.Second,
			DegradedInterval: time.Duration(getEnvInt("SYNC_DEGRADED_INTERVAL_SECONDS", 10)) * time.Second,
			ErrorRetryDelay:  5 * time.Second,
			FailureCeiling:   getEnvInt("SYNC_FAILURE_CEILING", 5),
			Retention:        time.Duration(getEnvInt("PAYMENT_RETENTION_HOURS", 24)) * time.Hour,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
