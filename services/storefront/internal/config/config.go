package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"wessbooks/pkg/auth"
)

// ConfigPath is the default config file, relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	DatabaseURL                string   `yaml:"databaseURL"`
	PasswordScheme             string   `yaml:"passwordScheme"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	SignInRateLimitPerMinute   int      `yaml:"signInRateLimitPerMinute"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins             []string `yaml:"allowedOrigins"`
	ShutdownTimeout            string   `yaml:"shutdownTimeout"`
}

// Path returns the config path from STOREFRONT_CONFIG, or ConfigPath.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A .env file next
// to it is loaded first; variables already set in the environment win.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envFile, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("STOREFRONT_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("STOREFRONT_PASSWORD_SCHEME"); v != "" {
		cfg.PasswordScheme = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STOREFRONT_SIGNIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: STOREFRONT_SIGNIN_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.SignInRateLimitPerMinute = n
	}
	if v := os.Getenv("STOREFRONT_REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: STOREFRONT_REGISTER_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RegisterRateLimitPerMinute = n
	}
	if v := os.Getenv("STOREFRONT_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("STOREFRONT_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("STOREFRONT_SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if _, err := auth.ParseScheme(cfg.PasswordScheme); err != nil {
		return fmt.Errorf("config: passwordScheme: %w", err)
	}
	if cfg.SignInRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := ParseShutdownTimeout(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseShutdownTimeout parses the optional graceful shutdown timeout.
// Empty means 10s.
func ParseShutdownTimeout(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 10 * time.Second, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("invalid shutdownTimeout duration: must be positive")
	}
	return dur, nil
}
