package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/qualityhub/internal/featureflags"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"

	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	minBcryptCost = 10
)

// Placeholder secrets that must never sign production tokens.
var weakSecrets = map[string]bool{
	"change-me-in-production": true,
	"secret":                  true,
	"secret-key":              true,
	"dev-secret":              true,
	"changeme":                true,
}

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	Storage            string
	Database           DatabaseConfig
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	TokenTTL           time.Duration
	BcryptCost         int
	HostFallback       HostFallback
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	LoginRatePerMinute int
	LoginBurst         int
	TenantCacheTTL     time.Duration
	SeedDemo           bool
	SeedPassword       string
	OTLPEndpoint       string
	TraceSampleRatio   float64

	// GeneratedSecret is set when a development run had no JWT_SECRET and a
	// random per-process key was generated instead.
	GeneratedSecret bool
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// HostFallback is the explicit exception table mapping non-production
// hostnames to a tenant subdomain.
type HostFallback struct {
	Enabled bool `yaml:"-"`
	// DefaultSubdomain is used for hosts mapped to an empty value.
	DefaultSubdomain string `yaml:"fallback_tenant"`
	// Hosts maps an exact hostname, or a "*.suffix" pattern, to a subdomain.
	Hosts map[string]string `yaml:"hosts"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool { return c.Environment == EnvDevelopment }

// Load reads configuration from environment variables. In development a
// local .env file is loaded first when present.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", EnvDevelopment)
	if env == EnvDevelopment {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		env = getEnv("ENVIRONMENT", EnvDevelopment)
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	cacheTTL, err := time.ParseDuration(getEnv("TENANT_CACHE_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TENANT_CACHE_TTL: %w", err)
	}
	bcryptCost, err := strconv.Atoi(getEnv("BCRYPT_COST", "12"))
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "600"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}
	loginRate, err := strconv.Atoi(getEnv("LOGIN_RATE_PER_MINUTE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE: %w", err)
	}
	loginBurst, err := strconv.Atoi(getEnv("LOGIN_BURST", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_BURST: %w", err)
	}

	fallbackEnabled, err := parseBoolEnv("HOST_FALLBACK_ENABLED", env == EnvDevelopment)
	if err != nil {
		return nil, err
	}
	fallback := HostFallback{
		Enabled:          fallbackEnabled || featureflags.Enabled(featureflags.HostFallback),
		DefaultSubdomain: getEnv("FALLBACK_TENANT", "demo"),
		Hosts:            map[string]string{"localhost": "", "127.0.0.1": ""},
	}
	if path := os.Getenv("HOST_FALLBACKS_FILE"); path != "" {
		if err := fallback.loadFile(path); err != nil {
			return nil, err
		}
	}

	seed, err := parseBoolEnv("SEED_DEMO", env == EnvDevelopment)
	if err != nil {
		return nil, err
	}
	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLER_ARG", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: %w", err)
	}

	cfg := &Config{
		Environment: env,
		ServerPort:  port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Storage:     getEnv("STORAGE", StoragePostgres),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "qualityhub"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "qualityhub"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          getEnv("JWT_ISSUER", "qualityhub"),
		TokenTTL:           tokenTTL,
		BcryptCost:         bcryptCost,
		HostFallback:       fallback,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitPerMinute: rateLimit,
		LoginRatePerMinute: loginRate,
		LoginBurst:         loginBurst,
		TenantCacheTTL:     cacheTTL,
		SeedDemo:           seed,
		SeedPassword:       os.Getenv("SEED_PASSWORD"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:   sampleRatio,
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that must not start.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("invalid ENVIRONMENT %q", c.Environment)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required outside development")
	}
	if !c.IsDevelopment() {
		if weakSecrets[strings.ToLower(c.JWTSecret)] {
			return errors.New("JWT_SECRET is a development placeholder")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters outside development")
		}
		if c.Storage == StorageMemory {
			return errors.New("STORAGE=memory is only allowed in development")
		}
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.BcryptCost < minBcryptCost {
		return fmt.Errorf("BCRYPT_COST must be at least %d", minBcryptCost)
	}
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("invalid STORAGE %q", c.Storage)
	}
	if c.SeedPassword != "" && len(c.SeedPassword) < 8 {
		return errors.New("SEED_PASSWORD must be at least 8 characters")
	}
	if c.HostFallback.Enabled && c.HostFallback.DefaultSubdomain == "" {
		for host, sub := range c.HostFallback.Hosts {
			if sub == "" {
				return fmt.Errorf("host fallback %q has no subdomain and FALLBACK_TENANT is empty", host)
			}
		}
	}
	return nil
}

func (h *HostFallback) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read HOST_FALLBACKS_FILE: %w", err)
	}
	var file HostFallback
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse HOST_FALLBACKS_FILE: %w", err)
	}
	if file.DefaultSubdomain != "" {
		h.DefaultSubdomain = file.DefaultSubdomain
	}
	for host, sub := range file.Hosts {
		h.Hosts[strings.ToLower(host)] = sub
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate development secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
