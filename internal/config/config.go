package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const fileName = ".cmsbrowserrc"

// Backends a session can browse.
const (
	BackendConnector = "connector"
	BackendS3        = "s3"
)

// Config holds the settings read from the rc file and the environment.
type Config struct {
	Token    string
	Endpoint string
	Backend  string

	S3Bucket    string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	StatePath     string
	ProvidersPath string
	LogLevel      string
}

// keys in file order; Save writes them in this order.
var keys = []string{
	"CMS_TOKEN",
	"CMS_ENDPOINT",
	"CMS_BACKEND",
	"S3_BUCKET",
	"S3_ENDPOINT",
	"S3_REGION",
	"S3_ACCESS_KEY",
	"S3_SECRET_KEY",
	"STATE_PATH",
	"PROVIDERS_PATH",
	"LOG_LEVEL",
}

func (c *Config) field(key string) *string {
	switch key {
	case "CMS_TOKEN":
		return &c.Token
	case "CMS_ENDPOINT":
		return &c.Endpoint
	case "CMS_BACKEND":
		return &c.Backend
	case "S3_BUCKET":
		return &c.S3Bucket
	case "S3_ENDPOINT":
		return &c.S3Endpoint
	case "S3_REGION":
		return &c.S3Region
	case "S3_ACCESS_KEY":
		return &c.S3AccessKey
	case "S3_SECRET_KEY":
		return &c.S3SecretKey
	case "STATE_PATH":
		return &c.StatePath
	case "PROVIDERS_PATH":
		return &c.ProvidersPath
	case "LOG_LEVEL":
		return &c.LogLevel
	}
	return nil
}

// DefaultPath returns the rc file location in the user's home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, fileName)
}

// Load reads KEY=VALUE pairs from path; environment variables with the same
// names override file values. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("cms_backend", BackendConnector)
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("log_level", "warn")
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("stat config %s: %w", path, err)
	}

	var cfg Config
	for _, k := range keys {
		*cfg.field(k) = strings.TrimSpace(v.GetString(strings.ToLower(k)))
	}
	return cfg, nil
}

// Save writes cfg to path as KEY=VALUE lines, skipping empty values.
func Save(path string, cfg Config) error {
	if cfg.Backend != BackendS3 && strings.TrimSpace(cfg.Token) == "" {
		return errors.New("config: token is empty")
	}
	var b strings.Builder
	for _, k := range keys {
		val := strings.TrimSpace(*cfg.field(k))
		if val == "" {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(val)
		b.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
