// Package config loads the WalletFit front-end configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = "walletfit.yaml"
	// DefaultEnvFile is loaded when present.
	DefaultEnvFile = ".env"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the complete front-end configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig locates the WalletFit REST API.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api/
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures the web front-end.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	Templates string `yaml:"templates"`
	Static    string `yaml:"static"`
	// Secure sends Strict-Transport-Security; only set it behind TLS.
	Secure bool `yaml:"secure"`
	// Hosts are extra Host header names accepted besides the addr host and
	// loopback.
	Hosts []string `yaml:"hosts"`
}

// StoreConfig selects where the session record is kept.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
	// Watch reloads the session when another process changes the SQLite file.
	Watch bool `yaml:"watch"`
}

// RedisConfig is used when Store.Backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api/",
			Timeout: 15 * time.Second,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8080",
			Templates: "web/templates",
			Static:    "web/static",
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "walletfit.db",
			Key:     "auth",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or
// DefaultFile when path is empty and it exists), then .env, then the process
// environment. The result is validated.
func Load(path string) (*Config, error) {
	return load(path, DefaultEnvFile, os.Environ())
}

func load(path, envFile string, environ []string) (*Config, error) {
	env, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	cfg := Default()
	required := path != ""
	if path == "" {
		path = env["WALLETFIT_CONFIG"]
		required = path != ""
	}
	if path == "" {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// readEnvFile returns the variables of a dotenv file without touching the
// process environment. A missing file yields an empty map.
func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	str := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := env[key]; ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("WALLETFIT_API_URL", &c.API.BaseURL)
	if v := env["WALLETFIT_API_TIMEOUT"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WALLETFIT_API_TIMEOUT: %w", err))
		} else {
			c.API.Timeout = d
		}
	}

	str("WALLETFIT_ADDR", &c.Server.Addr)
	if port := env["PORT"]; port != "" && env["WALLETFIT_ADDR"] == "" {
		c.Server.Addr = "127.0.0.1:" + port
	}
	str("WALLETFIT_TEMPLATES", &c.Server.Templates)
	str("WALLETFIT_STATIC", &c.Server.Static)
	boolean("WALLETFIT_SECURE", &c.Server.Secure)
	if v := env["WALLETFIT_HOSTS"]; v != "" {
		c.Server.Hosts = nil
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				c.Server.Hosts = append(c.Server.Hosts, h)
			}
		}
	}

	str("STORE_BACKEND", &c.Store.Backend)
	str("DB_PATH", &c.Store.Path)
	str("STORE_KEY", &c.Store.Key)
	boolean("STORE_WATCH", &c.Store.Watch)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	if v := env["REDIS_DB"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REDIS_DB: %w", err))
		} else {
			c.Redis.DB = n
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	boolean("METRICS_ENABLED", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute http(s) url", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q: want sqlite, redis or memory", c.Store.Backend)
	}
	if c.Store.Key == "" {
		return fmt.Errorf("store.key is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q: want debug, info, warn or error", name)
}

// NewLogger returns a text logger on stderr at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
