package config

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lepinkainen/backlogsync/internal/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// BACKLOGSYNC_STORE_GITHUB_TOKEN for store.github.token.
const EnvPrefix = "BACKLOGSYNC"

// Config is the complete runtime configuration. It is built once by Load and
// passed explicitly to every component that needs it.
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Steam       SteamConfig       `mapstructure:"steam"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Destination DestinationConfig `mapstructure:"destination"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Cache       CacheConfig       `mapstructure:"cache"`
	LocalState  LocalStateConfig  `mapstructure:"localstate"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Backend is one of "github", "sqlite" or "redis"
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type GitHubConfig struct {
	APIURL string `mapstructure:"apiurl"`
	Owner  string `mapstructure:"owner"`
	Repo   string `mapstructure:"repo"`
	Branch string `mapstructure:"branch"`
	Path   string `mapstructure:"path"`
	Token  string `mapstructure:"token"`
}

type SQLiteConfig struct {
	DBFile string `mapstructure:"dbfile"`
	Name   string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// SteamConfig points at the Steam store API.
type SteamConfig struct {
	StoreURL string        `mapstructure:"storeurl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// APIURL, APIKey and SteamID are only needed to import an owned library
	APIURL  string `mapstructure:"apiurl"`
	APIKey  string `mapstructure:"apikey"`
	SteamID string `mapstructure:"steamid"`
}

// EnrichmentConfig controls the background enrichment scheduler.
type EnrichmentConfig struct {
	InitialDelay time.Duration `mapstructure:"initialdelay"`
	Interval     time.Duration `mapstructure:"interval"`
	// Delay is the minimum gap between records sent to the Steam store
	Delay time.Duration `mapstructure:"delay"`
	// WatchInterval is how often the daemon polls for records added elsewhere
	WatchInterval time.Duration `mapstructure:"watchinterval"`
}

// DestinationConfig selects the reconciliation target.
type DestinationConfig struct {
	// Backend is one of "rest" or "postgres"
	Backend  string         `mapstructure:"backend"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	PageSize int            `mapstructure:"pagesize"`
	REST     RESTConfig     `mapstructure:"rest"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RESTConfig struct {
	BaseURL string `mapstructure:"baseurl"`
	Token   string `mapstructure:"token"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ReconcileConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

type CacheConfig struct {
	DBFile string        `mapstructure:"dbfile"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LocalStateConfig struct {
	DBFile string `mapstructure:"dbfile"`
}

// SetDefaults registers every key with its default so environment overrides
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "github")
	v.SetDefault("store.timeout", "15s")
	v.SetDefault("store.github.apiurl", "https://api.github.com")
	v.SetDefault("store.github.owner", "")
	v.SetDefault("store.github.repo", "")
	v.SetDefault("store.github.branch", "main")
	v.SetDefault("store.github.path", "backlog.json")
	v.SetDefault("store.github.token", "")
	v.SetDefault("store.sqlite.dbfile", "./backlog.db")
	v.SetDefault("store.sqlite.name", "backlog")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", "backlogsync:backlog")

	v.SetDefault("steam.storeurl", "https://store.steampowered.com")
	v.SetDefault("steam.timeout", "20s")
	v.SetDefault("steam.apiurl", "https://api.steampowered.com")
	v.SetDefault("steam.apikey", "")
	v.SetDefault("steam.steamid", "")

	v.SetDefault("enrichment.initialdelay", "5s")
	v.SetDefault("enrichment.interval", "30m")
	v.SetDefault("enrichment.delay", "1s")
	v.SetDefault("enrichment.watchinterval", "1m")

	v.SetDefault("destination.backend", "rest")
	v.SetDefault("destination.timeout", "15s")
	v.SetDefault("destination.pagesize", 100)
	v.SetDefault("destination.rest.baseurl", "")
	v.SetDefault("destination.rest.token", "")
	v.SetDefault("destination.postgres.dsn", "")

	v.SetDefault("reconcile.delay", "1s")

	v.SetDefault("cache.dbfile", "./cache.db")
	v.SetDefault("cache.ttl", "6h")

	v.SetDefault("localstate.dbfile", "./local.db")
}

// New returns a viper instance with defaults, env overrides and, if present,
// the config file loaded. A missing config file is not an error: credentials
// usually come from the environment.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stdErrors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("Config file not found, using defaults and environment")
	}

	return v, nil
}

// Load decodes the viper state into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateStore checks that the selected document store backend has
// everything it needs.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case "github":
		gh := c.Store.GitHub
		if gh.Owner == "" || gh.Repo == "" {
			return errors.NewNotConfiguredError("store.github.owner/repo", "set the repository that holds the backlog document")
		}
		if gh.Token == "" {
			return errors.NewNotConfiguredError("store.github.token", "set "+EnvPrefix+"_STORE_GITHUB_TOKEN")
		}
		if gh.Path == "" {
			return errors.NewNotConfiguredError("store.github.path", "")
		}
	case "sqlite":
		if c.Store.SQLite.DBFile == "" {
			return errors.NewNotConfiguredError("store.sqlite.dbfile", "")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.NewNotConfiguredError("store.redis.addr", "")
		}
	default:
		return errors.NewValidationError("store.backend", fmt.Sprintf("unknown backend %q (valid: github, sqlite, redis)", c.Store.Backend))
	}
	return nil
}

// ValidateDestination checks the reconciliation target configuration.
func (c *Config) ValidateDestination() error {
	switch c.Destination.Backend {
	case "rest":
		if c.Destination.REST.BaseURL == "" {
			return errors.NewNotConfiguredError("destination.rest.baseurl", "")
		}
		if c.Destination.REST.Token == "" {
			return errors.NewNotConfiguredError("destination.rest.token", "set "+EnvPrefix+"_DESTINATION_REST_TOKEN")
		}
	case "postgres":
		if c.Destination.Postgres.DSN == "" {
			return errors.NewNotConfiguredError("destination.postgres.dsn", "set "+EnvPrefix+"_DESTINATION_POSTGRES_DSN")
		}
	default:
		return errors.NewValidationError("destination.backend", fmt.Sprintf("unknown backend %q (valid: rest, postgres)", c.Destination.Backend))
	}
	return nil
}
