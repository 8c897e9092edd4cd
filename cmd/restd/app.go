package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/saylorsolutions/rest/config"
	"github.com/saylorsolutions/rest/dispatch"
	"github.com/saylorsolutions/rest/httpx"
	"github.com/saylorsolutions/rest/install"
	"github.com/saylorsolutions/rest/internal/retry"
	"github.com/saylorsolutions/rest/internal/syncx"
	"github.com/saylorsolutions/rest/message"
	"github.com/saylorsolutions/rest/registry"
	"github.com/saylorsolutions/rest/slogx"
	"github.com/saylorsolutions/rest/stream"
	"github.com/saylorsolutions/rest/stream/wsfeed"
)

const (
	HealthPath = "/health"

	systemTokenTTL = 5 * time.Minute
)

var errNotInstalled = fmt.Errorf("%w: service is still installing", dispatch.ErrInstall)

// installPolicy is used for building and installing a dispatcher. Attempts come from config.
var installPolicy = retry.Policy{
	Delay:    500 * time.Millisecond,
	Backoff:  2,
	MaxDelay: 10 * time.Second,
}

// app holds the process wide resources shared by every dispatcher built during startup.
type app struct {
	conf    *config.Config
	log     *slog.Logger
	stream  *stream.Stream
	hub     *wsfeed.Hub
	cors    httpx.Middleware
	current syncx.Guarded[*dispatch.Service]

	mux     sync.Mutex
	dbs     map[string]*sql.DB
	closers []io.Closer
}

func newApp(conf *config.Config, out io.Writer) (*app, error) {
	a := &app{conf: conf, dbs: map[string]*sql.DB{}}
	var file io.Writer
	if len(conf.LogFile) > 0 {
		f, err := os.OpenFile(conf.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		file = f
	}
	log, err := slogx.New(slogx.Options{
		Level:  conf.LogLevel,
		Format: conf.LogFormat,
		Output: out,
		File:   file,
	})
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.log = log
	if len(conf.CORSOrigins) > 0 {
		a.cors, err = httpx.CORSMiddleware(httpx.CORSPolicy{
			Origins: conf.CORSOrigins,
			Methods: message.Methods,
			Headers: []string{message.HeaderContentType, "Authorization", httpx.HeaderRequestID},
		})
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}
	a.hub = wsfeed.NewHub(wsfeed.WithLogger(log.With("component", "wsfeed")))
	a.stream = stream.New(
		stream.LogTransport(log.With("component", "stream"), slog.LevelDebug),
		stream.Isolate(a.hub, func(evt stream.Event, err error) {
			log.Debug("Event not forwarded to subscribers", "event", evt.Name, "error", err)
		}),
	)
	return a, nil
}

// openDB opens the database described by the published options, reusing an earlier connection to the same DSN.
// A configured driver only applies while the URL is still the configured one, since an ephemeral URL names its own driver.
// The driver must be registered with database/sql by the build.
func (a *app) openDB(name string, opt registry.DBOption) (install.Beginner, error) {
	db := config.Database{DBOption: opt}
	if configured, ok := a.conf.DB[name]; ok && configured.URL == opt.URL {
		db.Driver = configured.Driver
	}
	driver, dsn := db.DriverName(), db.DSN()
	conn, err := syncx.LockFuncTErr(&a.mux, func() (*sql.DB, error) {
		key := driver + " " + dsn
		if conn, ok := a.dbs[key]; ok {
			return conn, nil
		}
		conn, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open db '%s': %w", name, err)
		}
		a.dbs[key] = conn
		a.closers = append(a.closers, conn)
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	a.log.Debug("Using database", "name", name, "driver", driver)
	return conn, nil
}

func (a *app) Close() error {
	if a.hub != nil {
		a.hub.Close()
	}
	a.mux.Lock()
	defer a.mux.Unlock()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	clear(a.dbs)
	return errors.Join(errs...)
}

// buildService creates a fresh registry and dispatcher with every route bound.
func (a *app) buildService() (*dispatch.Service, error) {
	reg := registry.New()
	var token string
	if a.conf.InstallRoute {
		secret := []byte(a.conf.JWTSecret)
		var err error
		token, err = install.IssueSystemToken(secret, systemTokenTTL)
		if err != nil {
			return nil, err
		}
		// Connections are resolved when the route runs, after installation has published the database options.
		dispatch.Bind(reg, http.MethodPost, dispatch.InstallPath, install.Handler(secret,
			install.Schema{Connect: install.RegistryConnector(reg, a.openDB), Statements: a.conf.Schema()},
			install.WithLogger(a.log.With("component", "install")),
			install.WithStream(a.stream),
		))
	}
	dispatch.BindFunc(reg, http.MethodGet, HealthPath, a.health)
	return dispatch.New(reg, a.conf.Dispatch(token),
		dispatch.WithStream(a.stream),
		dispatch.WithLogger(a.log.With("component", "dispatch")),
	)
}

func (a *app) health(_ *message.Request, resp *message.Response) error {
	state := dispatch.Uninitialized
	if svc := a.current.Load(); svc != nil {
		state = svc.State()
	}
	return resp.JSON(map[string]any{
		"state":       state.String(),
		"subscribers": a.hub.Subscribers(),
	})
}

// install builds and installs dispatchers until one succeeds or the attempts run out.
// A failed install is permanent for its dispatcher, so every attempt starts over with a new one.
func (a *app) install(ctx context.Context) (*dispatch.Service, error) {
	policy := installPolicy
	policy.Attempts = a.conf.InstallAttempts
	var installed *dispatch.Service
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		svc, err := a.buildService()
		if err != nil {
			return retry.Permanent(err)
		}
		if err := svc.Install(); err != nil {
			a.log.Warn("Install attempt failed", "attempt", attempt, "error", err)
			return err
		}
		installed = svc
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.current.Store(installed)
	return installed, nil
}

// Process hands requests to the installed dispatcher, failing with [dispatch.ErrInstall] until there is one.
func (a *app) Process(req *message.Request, resp *message.Response) (*message.Response, error) {
	svc := a.current.Load()
	if svc == nil {
		return resp, errNotInstalled
	}
	return svc.Process(req, resp)
}

// Handler serves the event feed at the configured path and dispatches everything else.
func (a *app) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.conf.EventsPath, a.hub)
	mux.Handle("/", httpx.Handler(a, nil))
	middleware := []httpx.Middleware{
		httpx.RecoveryMiddleware(a.log),
		httpx.LoggingMiddleware(a.log.With("component", "http"), slog.LevelInfo),
	}
	if a.cors != nil {
		middleware = append(middleware, a.cors)
	}
	return httpx.Wrap(mux, middleware...)
}
