package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SupabaseConfig points at the hosted auth backend.
type SupabaseConfig struct {
	URL       string // e.g. https://xyzcompany.supabase.co
	AnonKey   string
	JWTSecret string
}

// MagicLinkConfig limits how often a single address can request a sign-in link.
type MagicLinkConfig struct {
	Interval time.Duration
	Burst    int
}

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	SiteURL        string
	AllowedOrigins []string
	CookieSecure   bool
	Database       DatabaseConfig
	Supabase       SupabaseConfig
	MagicLink      MagicLinkConfig
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads configuration from environment variables.
// It fails fast with clear errors for missing required values.
func Load() (*Config, error) {
	var missing []string

	port := getEnv("PORT", "8080")

	env := getEnv("ENV", "development")
	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", env)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		databaseURL = databaseURLFromParts()
	}
	if databaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	supabaseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/")
	if supabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	anonKey := strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY"))
	if anonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	jwtSecret := strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET"))
	if jwtSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateDatabaseURL(databaseURL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if err := validateHTTPURL(supabaseURL); err != nil {
		return nil, fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}

	siteURL := strings.TrimRight(getEnv("SITE_URL", "http://localhost:"+port), "/")
	if err := validateHTTPURL(siteURL); err != nil {
		return nil, fmt.Errorf("invalid SITE_URL: %w", err)
	}

	return &Config{
		Port:           port,
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SiteURL:        siteURL,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", siteURL)),
		CookieSecure:   getEnvBool("COOKIE_SECURE", env != "development"),
		Database: DatabaseConfig{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Supabase: SupabaseConfig{
			URL:       supabaseURL,
			AnonKey:   anonKey,
			JWTSecret: jwtSecret,
		},
		MagicLink: MagicLinkConfig{
			Interval: getEnvDuration("MAGIC_LINK_INTERVAL", time.Minute),
			Burst:    getEnvInt("MAGIC_LINK_BURST", 1),
		},
	}, nil
}

// databaseURLFromParts builds a connection string from the lowercase
// user/password/host/port/dbname variables that the Supabase dashboard exports.
func databaseURLFromParts() string {
	user := strings.TrimSpace(os.Getenv("user"))
	host := strings.TrimSpace(os.Getenv("host"))
	name := strings.TrimSpace(os.Getenv("dbname"))
	if user == "" || host == "" || name == "" {
		return ""
	}
	pass := strings.TrimSpace(os.Getenv("password"))
	port := strings.TrimSpace(os.Getenv("port"))
	if port == "" {
		port = "5432"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=require",
	}
	return u.String()
}

// validateDatabaseURL ensures the database URL is a valid PostgreSQL connection string.
func validateDatabaseURL(dbURL string) error {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("URL must use postgres or postgresql scheme, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
