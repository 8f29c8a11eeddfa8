package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/pricebot/internal/common"
)

// EnvPrefix prefixes every environment override, e.g. PRICEBOT_DATABASE_DRIVER.
const EnvPrefix = "PRICEBOT"

// TokenEnv is read when no token is configured under telegram.token.
const TokenEnv = "TELEGRAM_BOT_TOKEN"

// Supported backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the full application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Dialog   DialogConfig   `mapstructure:"dialog"`
}

// AppConfig names the deployment.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
	Debug       bool   `mapstructure:"debug"`
}

// DatabaseConfig selects and configures the entity store.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Path     string         `mapstructure:"path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds connection settings for the postgres driver.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Port            int           `mapstructure:"port"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdle         int           `mapstructure:"max_idle"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SessionConfig selects where per-user dialog state lives.
type SessionConfig struct {
	Backend string        `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DialogConfig tunes turn handling.
type DialogConfig struct {
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	TurnTimeout        time.Duration `mapstructure:"turn_timeout"`
	ReadAttempts       int           `mapstructure:"read_attempts"`
	MaxConcurrentTurns int           `mapstructure:"max_concurrent_turns"`
}

// HTTPConfig configures the ops server. An empty address disables it.
type HTTPConfig struct {
	Address string    `mapstructure:"address"`
	TLS     TLSConfig `mapstructure:"tls"`
}

// TLSConfig enables HTTPS on the ops server with a self-signed certificate.
type TLSConfig struct {
	CertDir string   `mapstructure:"cert_dir"`
	Hosts   []string `mapstructure:"hosts"`
	Enabled bool     `mapstructure:"enabled"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultDatabasePath is where the SQLite database lives unless configured.
func DefaultDatabasePath() string {
	return ExpandPath("~/.local/share/pricebot/pricebot.db")
}

// SetDefaults registers every key with viper so environment overrides
// resolve even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricebot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.debug", false)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "pricebot")
	v.SetDefault("database.postgres.user", "pricebot")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_connections", 10)
	v.SetDefault("database.postgres.max_idle", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("session.backend", SessionMemory)
	v.SetDefault("session.ttl", 30*24*time.Hour)
	v.SetDefault("session.redis.address", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)

	v.SetDefault("dialog.store_timeout", 5*time.Second)
	v.SetDefault("dialog.read_attempts", 3)
	v.SetDefault("dialog.turn_timeout", 30*time.Second)
	v.SetDefault("dialog.max_concurrent_turns", 16)

	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.tls.enabled", false)
	v.SetDefault("http.tls.cert_dir", "~/.config/pricebot/certs")
	v.SetDefault("http.tls.hosts", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration into v and decodes it. A missing config file is
// not an error unless configFile names it explicitly.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	loadEnvFile()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(ExpandPath(configFile))
	} else {
		v.AddConfigPath(ExpandPath("~/.config/pricebot"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Decode(v)
}

// Decode unmarshals an already populated viper instance and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv(TokenEnv)
	}
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.HTTP.TLS.CertDir = ExpandPath(cfg.HTTP.TLS.CertDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return invalid("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return invalid("database.postgres.host and database.postgres.database are required")
		}
	default:
		return invalid("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.Redis.Address == "" {
			return invalid("session.redis.address is required for the redis backend")
		}
	default:
		return invalid("session.backend must be %q or %q, got %q", SessionMemory, SessionRedis, c.Session.Backend)
	}

	if c.Session.TTL < 0 {
		return invalid("session.ttl must not be negative")
	}
	if c.Dialog.StoreTimeout <= 0 || c.Dialog.TurnTimeout <= 0 {
		return invalid("dialog timeouts must be positive")
	}
	if c.Dialog.ReadAttempts < 1 {
		return invalid("dialog.read_attempts must be at least 1")
	}
	if c.Dialog.MaxConcurrentTurns < 1 {
		return invalid("dialog.max_concurrent_turns must be at least 1")
	}

	if c.HTTP.TLS.Enabled && c.HTTP.TLS.CertDir == "" {
		return invalid("http.tls.cert_dir is required when tls is enabled")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return invalid("logging.format must be console or json, got %q", c.Logging.Format)
	}

	return nil
}

// RequireToken reports whether the bot can start.
func (c *Config) RequireToken() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("%w: set telegram.token, %s_TELEGRAM_TOKEN or %s", common.ErrMissingConfig, EnvPrefix, TokenEnv)
	}
	return nil
}

// DSN renders the postgres settings as a lib/pq keyword/value string.
func (p PostgresConfig) DSN() string {
	parts := []string{
		"host=" + quoteDSN(p.Host),
		fmt.Sprintf("port=%d", p.Port),
		"dbname=" + quoteDSN(p.Database),
		"user=" + quoteDSN(p.User),
	}
	if p.Password != "" {
		parts = append(parts, "password="+quoteDSN(p.Password))
	}
	if p.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSN(p.SSLMode))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// loadEnvFile loads the first .env found in the working directory or the
// config directory. Existing environment variables win.
func loadEnvFile() {
	candidates := []string{".env", filepath.Join(ExpandPath("~/.config/pricebot"), ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			common.LogError(err, "Failed to load env file", common.Fields{"path": path})
			continue
		}
		common.LogDebug("Loaded env file", common.Fields{"path": path})
		return
	}
}
