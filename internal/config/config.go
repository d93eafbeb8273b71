package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigPath is the default YAML config location.
	ConfigPath = "config.yaml"
	// EnvFilePath is loaded into the environment when present.
	EnvFilePath = ".env"

	defaultSessionTTL      = "168h"
	defaultUploadDir       = "public/data/uploads"
	defaultMaxUploadBytes  = int64(3e7)
	defaultAuthRateLimit   = 10
	defaultShutdownTimeout = "10s"
	defaultMinioBucket     = "elib"
)

// FileConfig represents configuration loaded from YAML, then overridden by
// environment variables.
type FileConfig struct {
	Port        string `yaml:"port" envconfig:"PORT"`
	DatabaseURL string `yaml:"databaseURL" envconfig:"DATABASE_URL"`
	LogLevel    string `yaml:"logLevel" envconfig:"LOG_LEVEL"`

	JWTSecret  string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
	JWTIssuer  string `yaml:"jwtIssuer" envconfig:"JWT_ISSUER"`
	JWTLeeway  string `yaml:"jwtLeeway" envconfig:"JWT_LEEWAY"`
	SessionTTL string `yaml:"sessionTTL" envconfig:"SESSION_TTL"`

	FrontendDomain string   `yaml:"frontendDomain" envconfig:"FRONTEND_DOMAIN"`
	TrustedProxies []string `yaml:"trustedProxies" envconfig:"TRUSTED_PROXIES"`

	RedisAddr              string `yaml:"redisAddr" envconfig:"REDIS_ADDR"`
	RedisPassword          string `yaml:"redisPassword" envconfig:"REDIS_PASSWORD"`
	AuthRateLimitPerMinute int    `yaml:"authRateLimitPerMinute" envconfig:"AUTH_RATE_LIMIT_PER_MINUTE"`

	MinioEndpoint  string `yaml:"minioEndpoint" envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minioAccessKey" envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minioSecretKey" envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `yaml:"minioBucket" envconfig:"MINIO_BUCKET"`
	MinioUseSSL    bool   `yaml:"minioUseSSL" envconfig:"MINIO_USE_SSL"`
	MediaPublicURL string `yaml:"mediaPublicURL" envconfig:"MEDIA_PUBLIC_URL"`

	UploadDir      string `yaml:"uploadDir" envconfig:"UPLOAD_DIR"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes" envconfig:"BOOK_MAX_UPLOAD_BYTES"`
	RequirePDF     bool   `yaml:"requirePDF" envconfig:"BOOK_REQUIRE_PDF"`

	ShutdownTimeout string `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Load reads config from path (defaults to ELIB_CONFIG, then config.yaml),
// applies .env and environment overrides, fills defaults and validates.
// A missing default config file is not an error.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if path == "" {
		path = os.Getenv("ELIB_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(EnvFilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", EnvFilePath, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = defaultUploadDir
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.AuthRateLimitPerMinute <= 0 {
		cfg.AuthRateLimitPerMinute = defaultAuthRateLimit
	}
	if cfg.MinioBucket == "" {
		cfg.MinioBucket = defaultMinioBucket
	}
	if cfg.ShutdownTimeout == "" {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.TrustedProxies = splitCSV(strings.Join(cfg.TrustedProxies, ","))
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml or MINIO_ACCESS_KEY)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml or MINIO_SECRET_KEY)")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseShutdownTimeout(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseSessionTTL parses the access token lifetime.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		ttlStr = defaultSessionTTL
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("sessionTTL must be positive, got %s", ttlStr)
	}
	return dur, nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// ParseShutdownTimeout parses the graceful shutdown budget.
func ParseShutdownTimeout(timeoutStr string) (time.Duration, error) {
	if timeoutStr == "" {
		timeoutStr = defaultShutdownTimeout
	}
	dur, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout duration: %w", err)
	}
	return dur, nil
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
