package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers selectable with STORAGE_DRIVER.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	IsProduction   bool
	EnableDBCheck  bool
	StorageDriver  string
	MigrationsPath string
	LogLevel       string

	JWTSecret string
	JWTIssuer string

	APIRateLimit       string // ulule limiter format, e.g. "120-M"
	CORSAllowedOrigins []string
	AdminUserIDs       []string
	MetricsEnabled     bool

	PosthogAPIKey   string
	PosthogEndpoint string

	NotifyWebhookURL   string
	NotifyTimeout      time.Duration
	ExecutorWebhookURL string
	ExecutorTimeout    time.Duration

	PlanCatalogPath     string
	DefaultPlanTier     string
	TemplateCatalogPath string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("STORAGE_DRIVER", StoragePostgres)
	viper.SetDefault("MIGRATIONS_PATH", "file://migrations")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("JWT_ISSUER", "agent-governance")
	viper.SetDefault("API_RATE_LIMIT", "120-M")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("ADMIN_USER_IDS", "")
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("POSTHOG_API_KEY", "")
	viper.SetDefault("POSTHOG_ENDPOINT", "https://us.i.posthog.com")
	viper.SetDefault("NOTIFY_WEBHOOK_URL", "")
	viper.SetDefault("NOTIFY_TIMEOUT", "5s")
	viper.SetDefault("EXECUTOR_WEBHOOK_URL", "")
	viper.SetDefault("EXECUTOR_TIMEOUT", "30s")
	viper.SetDefault("PLAN_CATALOG_PATH", "")
	viper.SetDefault("DEFAULT_PLAN_TIER", "free")
	viper.SetDefault("TEMPLATE_CATALOG_PATH", "")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")
	cfg.MigrationsPath = viper.GetString("MIGRATIONS_PATH")
	cfg.LogLevel = viper.GetString("LOG_LEVEL")

	cfg.StorageDriver = strings.ToLower(viper.GetString("STORAGE_DRIVER"))
	switch cfg.StorageDriver {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			log.Println("Warning: PGSQL_URL environment variable not set.")
		}
	case StorageMemory:
		if cfg.IsProduction {
			log.Println("Warning: STORAGE_DRIVER=memory in production, state is lost on restart.")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q, expected %q or %q", cfg.StorageDriver, StoragePostgres, StorageMemory)
	}

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}
	cfg.JWTIssuer = viper.GetString("JWT_ISSUER")

	cfg.APIRateLimit = viper.GetString("API_RATE_LIMIT")
	cfg.CORSAllowedOrigins = splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))
	cfg.AdminUserIDs = splitList(viper.GetString("ADMIN_USER_IDS"))
	if len(cfg.AdminUserIDs) == 0 {
		log.Println("Warning: ADMIN_USER_IDS not set. Admin endpoints will reject every caller.")
	}
	cfg.MetricsEnabled = viper.GetBool("METRICS_ENABLED")

	cfg.PosthogAPIKey = viper.GetString("POSTHOG_API_KEY")
	cfg.PosthogEndpoint = viper.GetString("POSTHOG_ENDPOINT")

	cfg.NotifyWebhookURL = viper.GetString("NOTIFY_WEBHOOK_URL")
	cfg.NotifyTimeout = durationOrDefault("NOTIFY_TIMEOUT", 5*time.Second)
	cfg.ExecutorWebhookURL = viper.GetString("EXECUTOR_WEBHOOK_URL")
	cfg.ExecutorTimeout = durationOrDefault("EXECUTOR_TIMEOUT", 30*time.Second)

	cfg.PlanCatalogPath = viper.GetString("PLAN_CATALOG_PATH")
	cfg.DefaultPlanTier = viper.GetString("DEFAULT_PLAN_TIER")
	cfg.TemplateCatalogPath = viper.GetString("TEMPLATE_CATALOG_PATH")

	return cfg, nil
}

func durationOrDefault(key string, def time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, def)
		}
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
