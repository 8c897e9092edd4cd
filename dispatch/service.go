package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saylorsolutions/rest/message"
	"github.com/saylorsolutions/rest/registry"
	"github.com/saylorsolutions/rest/stream"
)

const (
	EventInstall = "rest.install"
	EventProcess = "rest.process"

	InstallPath = "/install"
)

var (
	ErrInstall       = errors.New("install failed")
	ErrInvalidStatus = errors.New("invalid response status")
	ErrHandler       = errors.New("handler failed")
	ErrNilRequest    = errors.New("nil request")
)

// InstallStatuses are the statuses accepted from the install route.
// They're all treated as success, since an install route may legitimately be missing, forbidden, or already done.
var InstallStatuses = []int{
	http.StatusOK,
	http.StatusNoContent,
	http.StatusNotFound,
	http.StatusMethodNotAllowed,
	http.StatusForbidden,
}

// State is the installation state of a [Service].
type State int32

const (
	Uninitialized State = iota
	Installing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Installing:
		return "installing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// InstallError is returned when the install sequence can't complete.
// It's fatal for the [Service] that returned it.
type InstallError struct {
	Step string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrInstall, e.Step, e.Err)
}

func (e *InstallError) Unwrap() []error {
	return []error{ErrInstall, e.Err}
}

// Handler serves a single route.
type Handler interface {
	Serve(req *message.Request, resp *message.Response) error
}

// HandlerFunc is a function that implements [Handler].
type HandlerFunc func(req *message.Request, resp *message.Response) error

func (f HandlerFunc) Serve(req *message.Request, resp *message.Response) error {
	return f(req, resp)
}

// Bind binds a [Handler] for the method and path in the registry.
func Bind(b registry.Binder, method, path string, h Handler) {
	if h == nil {
		panic("nil handler")
	}
	b.Set(registry.RouteKey(method, path), h)
}

// BindFunc is a shorthand for binding a [HandlerFunc].
func BindFunc(b registry.Binder, method, path string, fn func(req *message.Request, resp *message.Response) error) {
	Bind(b, method, path, HandlerFunc(fn))
}

// Service is the request dispatcher. It's safe for concurrent use.
type Service struct {
	reg    registry.Binder
	conf   Config
	stream *stream.Stream
	log    *slog.Logger
	now    func() time.Time

	state      atomic.Int32
	installMux sync.Mutex
	installErr error
}

// New creates a [Service] in the [Uninitialized] state.
func New(reg registry.Binder, conf Config, opts ...Option) (*Service, error) {
	if reg == nil {
		return nil, errors.New("nil registry")
	}
	if conf.InstallRoute && len(conf.SystemToken) == 0 {
		return nil, errors.New("a system token is required when the install route is enabled")
	}
	s := &Service{
		reg:  reg,
		conf: conf,
		log:  discardLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stream == nil {
		s.stream = stream.New()
	}
	return s, nil
}

func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) Stream() *stream.Stream {
	return s.stream
}

func (s *Service) Registry() registry.Registry {
	return s.reg
}

// Install runs the install sequence if it hasn't run yet.
// Once the [Service] is [Ready] this returns nil immediately, and after a failure it returns the original [*InstallError].
func (s *Service) Install() error {
	if s.State() == Ready {
		return nil
	}
	s.installMux.Lock()
	defer s.installMux.Unlock()
	switch s.State() {
	case Ready:
		return nil
	case Installing:
		return s.installErr
	}
	s.state.Store(int32(Installing))
	if err := s.install(); err != nil {
		s.installErr = err
		s.log.Error("Install failed, service is unusable", "error", err)
		return err
	}
	s.state.Store(int32(Ready))
	s.log.Info("Service installed")
	return nil
}

func (s *Service) install() error {
	if !s.reg.Has(registry.KeyStream) {
		s.reg.Set(registry.KeyStream, s.stream)
	}
	for _, key := range s.conf.RequiredKeys {
		if _, err := s.reg.Get(key); err != nil {
			return &InstallError{Step: "required components", Err: err}
		}
	}
	if err := s.applyOverrides(); err != nil {
		return &InstallError{Step: "overrides", Err: err}
	}
	if s.conf.InstallRoute {
		status, err := s.dispatchInstallRoute()
		if err != nil {
			return &InstallError{Step: "install route", Err: err}
		}
		if !slices.Contains(InstallStatuses, status) {
			return &InstallError{Step: "install route", Err: fmt.Errorf("%w: unexpected status %d", ErrInvalidStatus, status)}
		}
		s.log.Debug("Install route dispatched", "status", status)
	}
	if err := s.stream.Commit(EventInstall, "", nil); err != nil {
		return &InstallError{Step: "commit", Err: err}
	}
	return nil
}

// applyOverrides publishes resource configuration to the registry.
// Sections missing from the [Config] fall back to what's already bound, so an ephemeral override can still rewrite them.
func (s *Service) applyOverrides() error {
	conf := s.conf
	if conf.DBOptions == nil {
		bound, ok, err := registry.DBOptions(s.reg)
		if err != nil {
			return err
		}
		if ok {
			conf.DBOptions = bound
		}
	}
	if conf.CacheConnectionURL == nil {
		bound, ok, err := registry.CacheConnectionURL(s.reg)
		if err != nil {
			return err
		}
		if ok {
			conf.CacheConnectionURL = &bound
		}
	}
	if conf.DBOptions != nil {
		opts := conf.dbOptions()
		s.reg.Set(registry.KeyDBOptions, opts)
		s.log.Debug("Published database options", "connections", len(opts), "ephemeral", conf.Ephemeral != nil)
	}
	if conf.CacheConnectionURL != nil {
		s.reg.Set(registry.KeyCacheConnectionURL, conf.cacheURL())
		s.log.Debug("Published cache connection URL", "ephemeral", conf.Ephemeral != nil)
	}
	return nil
}

func (s *Service) dispatchInstallRoute() (int, error) {
	req, err := message.NewRequest(http.MethodPost, InstallPath+"?jwt="+url.QueryEscape(s.conf.SystemToken))
	if err != nil {
		return 0, err
	}
	resp := message.NewResponse()
	if err := s.handle(req, resp); err != nil {
		if errors.Is(err, registry.ErrUnbound) {
			return http.StatusNotFound, nil
		}
		return 0, err
	}
	return resp.Status(), nil
}

// Process installs the [Service] if needed, then resolves and runs the handler for the request.
// The populated response is returned.
func (s *Service) Process(req *message.Request, resp *message.Response) (*message.Response, error) {
	if req == nil {
		return resp, ErrNilRequest
	}
	if resp == nil {
		resp = message.NewResponse()
	}
	if err := s.Install(); err != nil {
		return resp, err
	}
	return resp, s.handle(req, resp)
}

func (s *Service) handle(req *message.Request, resp *message.Response) error {
	start := s.now()
	handler, err := registry.Resolve[Handler](s.reg, registry.RouteKey(req.Method(), req.Path()))
	if err != nil {
		return err
	}
	if err := handler.Serve(req, resp); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHandler, req, err)
	}
	if !message.ValidStatus(resp.Status()) {
		status := resp.Status()
		resp.WithStatus(http.StatusInternalServerError)
		return fmt.Errorf("%w: handler for %s set %d", ErrInvalidStatus, req, status)
	}
	return s.stream.Commit(EventProcess, req.String(), map[string]any{
		"status":   resp.Status(),
		"duration": s.now().Sub(start),
	})
}
