// Package config loads fpx settings from the environment, an optional YAML
// file and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Prefix is prepended to every environment key.
const Prefix = "FPX"

// S3Config configures the blob backend used for S3-hosted item URLs.
type S3Config struct {
	Region          string   `envconfig:"REGION" default:"us-east-1"`
	Endpoint        string   `envconfig:"ENDPOINT"`
	AccessKeyID     string   `envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string   `envconfig:"SECRET_ACCESS_KEY"`
	ForcePathStyle  bool     `envconfig:"FORCE_PATH_STYLE"`
	Hosts           []string `envconfig:"HOSTS"`
}

type Config struct {
	Host  string `envconfig:"HOST" default:"0.0.0.0"`
	Port  int    `envconfig:"PORT" default:"8000"`
	DBURL string `envconfig:"DB_URL" default:"sqlite://fpx.db"`

	SimultaneousDownloadsLimit int           `envconfig:"SIMULTANEOUS_DOWNLOADS_LIMIT" default:"2"`
	NoQueue                    bool          `envconfig:"NO_QUEUE" default:"true"`
	AdmissionHold              time.Duration `envconfig:"ADMISSION_HOLD" default:"10m"`
	WaitTimeout                time.Duration `envconfig:"WAIT_TIMEOUT" default:"1h"`

	Transport      string        `envconfig:"TRANSPORT" default:"nethttp"`
	BufferedStream bool          `envconfig:"PIPE_BUFFERED_STREAM" default:"true"`
	ZipMethod      string        `envconfig:"ZIP_METHOD" default:"store"`
	ChunkSize      int           `envconfig:"CHUNK_SIZE" default:"1048576"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"24h"`

	BlockPrivateAddresses bool `envconfig:"BLOCK_PRIVATE_ADDRESSES"`

	JWTAlgorithm string   `envconfig:"JWT_ALGORITHM" default:"HS256"`
	CORSOrigins  []string `envconfig:"CORS_ORIGINS" default:"*"`
	LogLevel     string   `envconfig:"LOG_LEVEL" default:"INFO"`

	TicketTTL     time.Duration `envconfig:"TICKET_TTL" default:"0"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`

	// StartupDNSCheck is a host resolved before the server starts; empty skips it.
	StartupDNSCheck string `envconfig:"STARTUP_DNS_CHECK"`

	S3 S3Config `envconfig:"S3"`
}

// Load reads .env (if present), then the YAML file named by FPX_CONFIG, then
// the process environment. Values already in the environment win.
func Load() (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path := os.Getenv(Prefix + "_CONFIG"); path != "" {
		if err := applyFile(path); err != nil {
			return cfg, err
		}
	}
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	return cfg, cfg.Validate()
}

// applyFile exports the keys of a flat YAML mapping as environment variables
// unless they are already set. Keys may omit the FPX_ prefix.
func applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for key, value := range values {
		key = strings.ToUpper(key)
		if !strings.HasPrefix(key, Prefix+"_") {
			key = Prefix + "_" + key
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, stringify(value)); err != nil {
			return err
		}
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// Validate rejects settings that cannot work at all. The transport name is
// checked where it is used.
func (c Config) Validate() error {
	if c.SimultaneousDownloadsLimit < 0 {
		return fmt.Errorf("%s_SIMULTANEOUS_DOWNLOADS_LIMIT must not be negative", Prefix)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%s_CHUNK_SIZE must be positive", Prefix)
	}
	switch strings.ToLower(c.ZipMethod) {
	case "store", "deflate":
	default:
		return fmt.Errorf("%s_ZIP_METHOD must be store or deflate, got %q", Prefix, c.ZipMethod)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the configuration produced by an empty environment.
func Default() Config {
	var cfg Config
	// Defaults never fail to parse.
	_ = envconfig.Process("FPX_DEFAULTS_ONLY", &cfg)
	return cfg
}
