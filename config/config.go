// Package config loads restd settings from defaults, an optional HCL file, and REST_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/saylorsolutions/rest/dispatch"
	"github.com/saylorsolutions/rest/registry"
	"github.com/saylorsolutions/rest/slogx"
)

const (
	EnvPrefix = "REST_"

	DefaultListen          = ":8080"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultInstallAttempts = 3
	DefaultEventsPath      = "/__events"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

// Database is a named connection with the DDL run for it by the install route.
type Database struct {
	registry.DBOption
	// Driver is the database/sql driver name. It defaults to the URL scheme.
	Driver string
	Schema []string
}

// DriverName returns [Database.Driver], or the scheme of the URL if that's empty.
func (d Database) DriverName() string {
	if len(d.Driver) > 0 {
		return d.Driver
	}
	scheme, _, found := strings.Cut(d.URL, "://")
	if !found {
		return ""
	}
	return scheme
}

// DSN is the URL without the scheme, which is what most database/sql drivers expect.
func (d Database) DSN() string {
	_, dsn, found := strings.Cut(d.URL, "://")
	if !found {
		return d.URL
	}
	return dsn
}

type Config struct {
	Listen          string
	LogLevel        slog.Level
	LogFormat       string
	LogFile         string
	JWTSecret       string
	InstallRoute    bool
	InstallAttempts int
	ShutdownTimeout time.Duration
	EventsPath      string
	CORSOrigins     []string
	CacheURL        *string
	Ephemeral       *dispatch.Ephemeral
	DB              map[string]Database
}

// Default returns a [Config] with every default set.
func Default() *Config {
	return &Config{
		Listen:          DefaultListen,
		LogLevel:        slog.LevelInfo,
		InstallAttempts: DefaultInstallAttempts,
		ShutdownTimeout: DefaultShutdownTimeout,
		EventsPath:      DefaultEventsPath,
	}
}

// Load reads the file at path, if path isn't empty, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	conf := Default()
	if len(path) > 0 {
		if err := ParseFile(conf, path); err != nil {
			return nil, err
		}
	}
	if err := conf.ApplyEnv(Env{Prefix: EnvPrefix}); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ApplyEnv overrides settings with any variables set in env.
func (c *Config) ApplyEnv(env Env) error {
	c.Listen = env.Val("LISTEN", c.Listen)
	c.LogFormat = env.Val("LOG_FORMAT", c.LogFormat)
	c.LogFile = env.Val("LOG_FILE", c.LogFile)
	c.JWTSecret = env.Val("JWT_SECRET", c.JWTSecret)
	c.InstallRoute = env.Bool("INSTALL_ROUTE", c.InstallRoute)
	c.InstallAttempts = env.Int("INSTALL_ATTEMPTS", c.InstallAttempts)
	c.ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.EventsPath = env.Val("EVENTS_PATH", c.EventsPath)
	if env.Set("LOG_LEVEL") {
		if err := c.LogLevel.UnmarshalText([]byte(env.Val("LOG_LEVEL", ""))); err != nil {
			return fmt.Errorf("%w: %sLOG_LEVEL: %v", ErrInvalidConfig, env.Prefix, err)
		}
	}
	if env.Set("CORS_ORIGINS") {
		c.CORSOrigins = nil
		for _, origin := range strings.Split(env.Val("CORS_ORIGINS", ""), ",") {
			if origin = strings.TrimSpace(origin); len(origin) > 0 {
				c.CORSOrigins = append(c.CORSOrigins, origin)
			}
		}
	}
	if env.Set("CACHE_URL") {
		url := env.Val("CACHE_URL", "")
		c.CacheURL = &url
	}
	if env.Bool("EPHEMERAL", false) && c.Ephemeral == nil {
		c.Ephemeral = &dispatch.Ephemeral{}
	}
	return nil
}

// Validate reports every problem with the [Config] at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Listen) == 0 {
		errs = append(errs, errors.New("listen address is required"))
	}
	switch c.LogFormat {
	case slogx.FormatAuto, slogx.FormatText, slogx.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format '%s'", c.LogFormat))
	}
	if c.InstallRoute && len(c.JWTSecret) == 0 {
		errs = append(errs, errors.New("a JWT secret is required when the install route is enabled"))
	}
	if c.InstallAttempts < 1 {
		errs = append(errs, fmt.Errorf("install attempts must be at least 1, got %d", c.InstallAttempts))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if !strings.HasPrefix(c.EventsPath, "/") {
		errs = append(errs, fmt.Errorf("events path '%s' must start with '/'", c.EventsPath))
	}
	for _, name := range slices.Sorted(maps.Keys(c.DB)) {
		if len(c.DB[name].URL) == 0 {
			errs = append(errs, fmt.Errorf("db '%s' has no url", name))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Dispatch creates the [dispatch.Config] for these settings.
// The systemToken is sent to the install route, and is ignored if the route is disabled.
func (c *Config) Dispatch(systemToken string) dispatch.Config {
	conf := dispatch.Config{
		CacheConnectionURL: c.CacheURL,
		Ephemeral:          c.Ephemeral,
		InstallRoute:       c.InstallRoute,
	}
	if c.InstallRoute {
		conf.SystemToken = systemToken
	}
	if c.DB != nil {
		conf.DBOptions = make(map[string]registry.DBOption, len(c.DB))
		for name, db := range c.DB {
			conf.DBOptions[name] = db.DBOption
		}
	}
	return conf
}

// Schema returns the install statements for every database that has any.
func (c *Config) Schema() map[string][]string {
	schema := map[string][]string{}
	for name, db := range c.DB {
		if len(db.Schema) > 0 {
			schema[name] = slices.Clone(db.Schema)
		}
	}
	return schema
}
