package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. It is populated once at
// bootstrap (defaults, then optional YAML file, then environment) and never
// mutated afterwards.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimitAnonymous     int `yaml:"rate_limit_anonymous"`
	RateLimitAuthenticated int `yaml:"rate_limit_authenticated"`

	ImageRetentionDays      int  `yaml:"image_retention_days"`
	BackupRetentionDays     int  `yaml:"backup_retention_days"`
	EnableContentModeration bool `yaml:"enable_content_moderation"`

	DatabaseURL   string `yaml:"database_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`

	PublicBaseURL string `yaml:"public_base_url"`
	SigningSecret string `yaml:"signing_secret"`
	AdminToken    string `yaml:"admin_token"`

	ModelEndpoint string `yaml:"model_endpoint"`
	ModelAPIToken string `yaml:"model_api_token"`
}

// Default returns the baseline configuration before file/env overrides
func Default() *Config {
	return &Config{
		ListenAddr:              ":8080",
		Environment:             "development",
		LogLevel:                "info",
		LogJSON:                 true,
		AllowedOrigins:          []string{"http://localhost:3000"},
		RateLimitAnonymous:      5,
		RateLimitAuthenticated:  20,
		ImageRetentionDays:      30,
		BackupRetentionDays:     90,
		EnableContentModeration: true,
		RedisAddr:               "localhost:6379",
		S3Region:                "auto",
		PublicBaseURL:           "http://localhost:8080/images",
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.AllowedOrigins = origins
	}

	setInt(&c.RateLimitAnonymous, "RATE_LIMIT_ANONYMOUS")
	setInt(&c.RateLimitAuthenticated, "RATE_LIMIT_AUTHENTICATED")
	setInt(&c.ImageRetentionDays, "IMAGE_RETENTION_DAYS")
	setInt(&c.BackupRetentionDays, "BACKUP_RETENTION_DAYS")
	setBool(&c.EnableContentModeration, "ENABLE_CONTENT_MODERATION")

	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.S3Bucket, "S3_BUCKET")
	setString(&c.S3Endpoint, "S3_ENDPOINT")
	setString(&c.S3Region, "S3_REGION")
	setString(&c.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&c.SigningSecret, "SIGNING_SECRET")
	setString(&c.AdminToken, "ADMIN_TOKEN")
	setString(&c.ModelEndpoint, "MODEL_ENDPOINT")
	setString(&c.ModelAPIToken, "MODEL_API_TOKEN")
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.RateLimitAnonymous <= 0 {
		return fmt.Errorf("rate_limit_anonymous must be positive, got %d", c.RateLimitAnonymous)
	}
	if c.RateLimitAuthenticated <= 0 {
		return fmt.Errorf("rate_limit_authenticated must be positive, got %d", c.RateLimitAuthenticated)
	}
	if c.ImageRetentionDays <= 0 {
		return fmt.Errorf("image_retention_days must be positive, got %d", c.ImageRetentionDays)
	}
	if c.BackupRetentionDays <= 0 {
		return fmt.Errorf("backup_retention_days must be positive, got %d", c.BackupRetentionDays)
	}
	if !c.IsDevelopment() && c.SigningSecret == "" {
		return fmt.Errorf("signing_secret is required outside development")
	}
	return nil
}

// IsDevelopment reports whether the service runs with development features
// (in-memory blob store fallback, /internal endpoints) enabled.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// OriginAllowed reports whether the request origin is in the allow list
func (c *Config) OriginAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
