package dispatch

import (
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/saylorsolutions/rest/registry"
	"github.com/saylorsolutions/rest/stream"
)

const (
	DefaultEphemeralDBURL    = "sqlite://sqlite::memory:"
	DefaultEphemeralCacheURL = "array://localhost"
)

// Config describes the environment wiring applied during installation.
// Nil sections are absent, and are skipped.
type Config struct {
	DBOptions          map[string]registry.DBOption
	CacheConnectionURL *string
	// Ephemeral redirects external resources to throwaway endpoints, which is useful for tests.
	Ephemeral *Ephemeral
	// InstallRoute enables dispatching "POST /install" during installation.
	InstallRoute bool
	// SystemToken is passed as the "jwt" query parameter of the install request.
	SystemToken string
	// RequiredKeys must all be resolvable before installation can complete.
	RequiredKeys []string
}

// Ephemeral holds the endpoints that replace configured resource URLs.
// Empty fields fall back to [DefaultEphemeralDBURL] and [DefaultEphemeralCacheURL].
type Ephemeral struct {
	DBURL    string
	CacheURL string
}

func (e *Ephemeral) dbURL() string {
	if len(e.DBURL) == 0 {
		return DefaultEphemeralDBURL
	}
	return e.DBURL
}

func (e *Ephemeral) cacheURL() string {
	if len(e.CacheURL) == 0 {
		return DefaultEphemeralCacheURL
	}
	return e.CacheURL
}

// dbOptions returns the options to publish, with overrides applied.
func (c Config) dbOptions() map[string]registry.DBOption {
	opts := maps.Clone(c.DBOptions)
	if c.Ephemeral == nil {
		return opts
	}
	for name, opt := range opts {
		opt.URL = c.Ephemeral.dbURL()
		opts[name] = opt
	}
	return opts
}

func (c Config) cacheURL() string {
	if c.Ephemeral != nil {
		return c.Ephemeral.cacheURL()
	}
	return *c.CacheConnectionURL
}

// Option customizes a [Service].
type Option func(s *Service)

// WithStream sets the [stream.Stream] used for committing events.
// By default, a new one is created. Installation binds it to [registry.KeyStream] unless something is bound there already.
func WithStream(st *stream.Stream) Option {
	return func(s *Service) {
		if st != nil {
			s.stream = st
		}
	}
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used to measure request durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
