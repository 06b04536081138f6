// Package config loads the server configuration.
//
// Values are layered, later sources overriding earlier ones:
//   - built-in defaults
//   - a YAML file named by --config or SHORTENER_CONFIG
//   - a dotenv file named by --env-file (".env" is read when present)
//   - the process environment
//   - command-line flags
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"pgshortener/internal/postgres"
	"pgshortener/internal/shortcode"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// ConfigEnv names the environment variable holding the YAML file path.
const ConfigEnv = "SHORTENER_CONFIG"

const defaultEnvFile = ".env"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   string          `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	ShortCode ShortCodeConfig `yaml:"shortcode"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// BaseURL prefixes short links in responses.
	// Default: http://localhost:<port>
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`

	// URL, when set, replaces the individual connection fields.
	URL string `yaml:"url"`

	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ResetTimeout   time.Duration `yaml:"reset_timeout"`

	// MaintainInterval is how often dropped connections are replaced.
	MaintainInterval time.Duration `yaml:"maintain_interval"`

	// Table may be schema-qualified.
	Table string `yaml:"table"`
}

// RedisConfig configures the optional record cache. An empty Addr
// disables caching.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig configures the default slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ShortCodeConfig configures short code generation.
type ShortCodeConfig struct {
	Alphabet  string `yaml:"alphabet"`
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StoragePostgres,
		Database: DatabaseConfig{
			Host:             "localhost",
			Port:             5432,
			User:             "postgres",
			Password:         "postgres",
			Name:             "postgres",
			PoolSize:         10,
			AcquireTimeout:   postgres.DefaultAcquireTimeout,
			ResetTimeout:     postgres.DefaultResetTimeout,
			MaintainInterval: 30 * time.Second,
			Table:            "urls",
		},
		Redis: RedisConfig{
			TTL: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		ShortCode: ShortCodeConfig{
			Alphabet:  shortcode.Alphabet,
			MinLength: shortcode.DefaultLength,
			MaxLength: shortcode.DefaultLength,
		},
	}
}

// setting binds one value to its environment variable and flag.
type setting struct {
	env   string
	flag  string
	usage string
	set   func(c *Config, v string) error
}

var settings = []setting{
	{"PORT", "port", "HTTP listen port", intField(func(c *Config) *int { return &c.Server.Port })},
	{"SHUTDOWN_TIMEOUT", "shutdown-timeout", "graceful shutdown timeout", durationField(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"BASE_URL", "base-url", "public base URL for short links", stringField(func(c *Config) *string { return &c.Server.BaseURL })},
	{"STORAGE", "storage", "storage backend (postgres or memory)", stringField(func(c *Config) *string { return &c.Storage })},
	{"DB_HOST", "db-host", "PostgreSQL host", stringField(func(c *Config) *string { return &c.Database.Host })},
	{"DB_PORT", "db-port", "PostgreSQL port", intField(func(c *Config) *int { return &c.Database.Port })},
	{"DB_USER", "db-user", "PostgreSQL user", stringField(func(c *Config) *string { return &c.Database.User })},
	{"DB_PASSWORD", "db-password", "PostgreSQL password", stringField(func(c *Config) *string { return &c.Database.Password })},
	{"DB_NAME", "db-name", "PostgreSQL database name", stringField(func(c *Config) *string { return &c.Database.Name })},
	{"DB_SSLMODE", "db-sslmode", "PostgreSQL sslmode (disable, require, verify-full, ...)", stringField(func(c *Config) *string { return &c.Database.SSLMode })},
	{"DATABASE_URL", "database-url", "PostgreSQL connection URL", stringField(func(c *Config) *string { return &c.Database.URL })},
	{"DB_POOL_SIZE", "db-pool-size", "number of pooled connections", intField(func(c *Config) *int { return &c.Database.PoolSize })},
	{"DB_ACQUIRE_TIMEOUT", "db-acquire-timeout", "wait for a free connection", durationField(func(c *Config) *time.Duration { return &c.Database.AcquireTimeout })},
	{"DB_RESET_TIMEOUT", "db-reset-timeout", "bound on reconnecting a broken connection", durationField(func(c *Config) *time.Duration { return &c.Database.ResetTimeout })},
	{"DB_MAINTAIN_INTERVAL", "db-maintain-interval", "pool replenish interval", durationField(func(c *Config) *time.Duration { return &c.Database.MaintainInterval })},
	{"DB_TABLE", "db-table", "table holding short URLs", stringField(func(c *Config) *string { return &c.Database.Table })},
	{"REDIS_ADDR", "redis-addr", "Redis address; empty disables the cache", stringField(func(c *Config) *string { return &c.Redis.Addr })},
	{"REDIS_PASSWORD", "redis-password", "Redis password", stringField(func(c *Config) *string { return &c.Redis.Password })},
	{"REDIS_DB", "redis-db", "Redis database number", intField(func(c *Config) *int { return &c.Redis.DB })},
	{"CACHE_TTL", "cache-ttl", "lifetime of cached records", durationField(func(c *Config) *time.Duration { return &c.Redis.TTL })},
	{"LOG_LEVEL", "log-level", "log level (debug, info, warn, error)", stringField(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", "log-format", "log format (text or json)", stringField(func(c *Config) *string { return &c.Log.Format })},
	{"SHORTCODE_ALPHABET", "shortcode-alphabet", "characters used in short codes", stringField(func(c *Config) *string { return &c.ShortCode.Alphabet })},
	{"SHORTCODE_MIN_LENGTH", "shortcode-min-length", "minimum short code length", intField(func(c *Config) *int { return &c.ShortCode.MinLength })},
	{"SHORTCODE_MAX_LENGTH", "shortcode-max-length", "maximum short code length", intField(func(c *Config) *int { return &c.ShortCode.MaxLength })},
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = i
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*field(c) = d
		return nil
	}
}

// NewFlagSet returns the flags Load understands. It is exported for help
// output.
func NewFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.String("config", "", "path to a YAML config file (or "+ConfigEnv+")")
	flagSet.String("env-file", "", "path to a dotenv file (default: .env if present)")
	for _, s := range settings {
		flagSet.String(s.flag, "", s.usage+" ("+s.env+")")
	}
	return flagSet
}

// Load builds the configuration from args (without the program name) and
// environ (as os.Environ). The result has been validated.
func Load(args, environ []string) (Config, error) {
	flagSet := NewFlagSet("shortener")
	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return Config{}, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	env := envMap(environ)
	cfg := Default()

	configPath, _ := flagSet.GetString("config")
	if configPath == "" {
		configPath = env[ConfigEnv]
	}
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}

	envFile, _ := flagSet.GetString("env-file")
	dotenv, err := readEnvFile(envFile)
	if err != nil {
		return Config{}, err
	}
	for k, v := range env {
		dotenv[k] = v
	}

	for _, s := range settings {
		v, ok := dotenv[s.env]
		if !ok || v == "" {
			continue
		}
		if err := s.set(&cfg, v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.env, err)
		}
	}

	var flagErr error
	flagSet.Visit(func(f *pflag.Flag) {
		for _, s := range settings {
			if s.flag != f.Name {
				continue
			}
			if err := s.set(&cfg, f.Value.String()); err != nil && flagErr == nil {
				flagErr = fmt.Errorf("--%s: %w", s.flag, err)
			}
		}
	})
	if flagErr != nil {
		return Config{}, flagErr
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// readEnvFile reads path, or .env when path is empty. A missing default
// file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return values, nil
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive"))
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("database.pool_size must be >= 1, got %d", c.Database.PoolSize))
		}
		if c.Database.AcquireTimeout <= 0 {
			errs = append(errs, fmt.Errorf("database.acquire_timeout must be positive"))
		}
		if c.Database.ResetTimeout <= 0 {
			errs = append(errs, fmt.Errorf("database.reset_timeout must be positive"))
		}
		if c.Database.MaintainInterval <= 0 {
			errs = append(errs, fmt.Errorf("database.maintain_interval must be positive"))
		}
		if _, err := c.Database.ConnectionConfig(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage: %q", c.Storage))
	}

	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		errs = append(errs, fmt.Errorf("redis.ttl must be positive"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format: %q", c.Log.Format))
	}

	if c.ShortCode.Alphabet == "" {
		errs = append(errs, fmt.Errorf("shortcode.alphabet is required"))
	}
	if c.ShortCode.MinLength < 1 || c.ShortCode.MaxLength < 1 {
		errs = append(errs, fmt.Errorf("shortcode lengths must be >= 1"))
	}

	return errors.Join(errs...)
}

// ConnectionConfig returns the validated PostgreSQL settings, preferring
// URL over the individual fields. SSLMode applies to either form; on a URL it
// overrides any sslmode the URL carries.
func (d DatabaseConfig) ConnectionConfig() (postgres.ConnectionConfig, error) {
	var (
		cc  postgres.ConnectionConfig
		err error
	)
	if d.URL != "" {
		cc, err = postgres.ParseConnectionURL(d.URL)
	} else {
		cc, err = postgres.NewConnectionConfig(d.Host, d.User, d.Password, d.Name, d.Port)
	}
	if err != nil || d.SSLMode == "" {
		return cc, err
	}
	return cc.WithOption("sslmode", d.SSLMode)
}

// PoolConfig returns the pool settings.
func (d DatabaseConfig) PoolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		Size:           d.PoolSize,
		AcquireTimeout: d.AcquireTimeout,
		ResetTimeout:   d.ResetTimeout,
	}
}

// Generator returns the short code generator settings.
func (s ShortCodeConfig) Generator() shortcode.Config {
	return shortcode.Config{
		Alphabet:  s.Alphabet,
		MinLength: s.MinLength,
		MaxLength: s.MaxLength,
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level: %q", l.Level)
	}
	return level, nil
}

// NewLogger builds a logger writing to w in the configured format and level.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
