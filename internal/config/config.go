package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string

	PostgresDSN   string
	RedisAddr     string
	ClickHouseDSN string
	GeoIPDB       string

	// DryRun forces every adapter call into validation-only mode with
	// deterministic IDs and no upstream side effects.
	DryRun bool

	// CORS and facade configuration.
	CORSAllowedOrigins []string
	AdminUIURL         string
	PublicBaseURL      string

	// Notification endpoints.
	SlackWebhookURL string
	HITLWebhookURL  string

	// Super-admin bootstrap key storage.
	SuperAdminKeyFile string

	// Google Ad Manager OAuth application credentials (shared across
	// tenants; refresh tokens are per tenant).
	GAMOAuthClientID     string
	GAMOAuthClientSecret string

	// Conversation cache.
	ContextCacheTTL time.Duration

	// Inventory sync staleness horizon.
	SyncMaxAge time.Duration

	// Database connection pooling configuration.
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Tracing configuration.
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 10*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "adsales-gateway")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.GeoIPDB = getenv("GEOIP_DB", "")

	cfg.DryRun = envBool("DRY_RUN", false)

	cfg.CORSAllowedOrigins = envList("CORS_ALLOWED_ORIGINS", []string{"*"})
	cfg.AdminUIURL = getenv("ADMIN_UI_URL", "")
	cfg.PublicBaseURL = getenv("PUBLIC_BASE_URL", "http://localhost:8787")

	cfg.SlackWebhookURL = getenv("SLACK_WEBHOOK_URL", "")
	cfg.HITLWebhookURL = getenv("HITL_WEBHOOK_URL", "")

	cfg.SuperAdminKeyFile = getenv("SUPERADMIN_KEY_FILE", ".superadmin_key")

	cfg.GAMOAuthClientID = getenv("GAM_OAUTH_CLIENT_ID", "")
	cfg.GAMOAuthClientSecret = getenv("GAM_OAUTH_CLIENT_SECRET", "")

	cfg.ContextCacheTTL = envDuration("CONTEXT_CACHE_TTL", 10*time.Minute)
	cfg.SyncMaxAge = envDuration("SYNC_MAX_AGE", 24*time.Hour)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList parses a comma-separated environment variable. When unset, def is returned.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
