package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
	transportpkg "github.com/drblury/eventrelay/transport"
)

const (
	routerCloseTimeout = 30 * time.Second
	httpShutdownGrace  = 5 * time.Second
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators of a Service.
type ServiceDependencies struct {
	// Transport replaces the one built from the registry. The Service owns
	// it either way and closes it when Run returns.
	Transport *transportpkg.Transport
	// Registerer receives the router metrics. Nil disables them.
	Registerer prometheus.Registerer

	Middlewares               []MiddlewareRegistration // Appended after the default chain.
	DisableDefaultMiddlewares bool
}

// Service hosts one Watermill router on a transport owned by one consumer
// group, plus any HTTP endpoints the consumer exposes.
type Service struct {
	Name   string
	Logger loggingpkg.ServiceLogger

	transport  transportpkg.Transport
	router     *message.Router
	registerer prometheus.Registerer

	handlersMu sync.Mutex
	handlers   []string

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	closeOnce sync.Once
}

// NewService sets up a router with the middleware chain on the transport
// for tcfg. The transport is built when the router first subscribes, so
// nothing dials the broker before Run. Register handlers before calling Run.
func NewService(ctx context.Context, name string, tcfg transportpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	log = log.With(loggingpkg.LogFields{"component": name})
	wmLogger := loggingpkg.NewWatermillAdapter(log)

	var tr transportpkg.Transport
	switch {
	case deps.Transport != nil:
		tr = *deps.Transport
		if tr.Subscriber == nil {
			_ = tr.Close()
			return nil, errspkg.ErrSubscriberRequired
		}
	case tcfg == nil:
		return nil, errspkg.ErrConfigRequired
	case !transportpkg.DefaultRegistry.Has(tcfg.GetPubSubSystem()):
		return nil, fmt.Errorf("%w: %q (registered: %v)", transportpkg.ErrUnknownTransport,
			tcfg.GetPubSubSystem(), transportpkg.DefaultRegistry.Names())
	default:
		tr = transportpkg.Transport{Subscriber: newDeferredSubscriber(func(ctx context.Context) (transportpkg.Transport, error) {
			return transportpkg.Build(ctx, tcfg, wmLogger)
		})}
	}

	fields := loggingpkg.LogFields{}
	if tcfg != nil {
		fields["pubsub_system"] = tcfg.GetPubSubSystem()
		fields["consumer_group"] = tcfg.GetConsumerGroup()
		fields["initial_offset"] = tcfg.GetInitialOffset()
	}
	log.Info("Creating consumer service", fields)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: routerCloseTimeout}, wmLogger)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}

	s := &Service{
		Name:       name,
		Logger:     log,
		transport:  tr,
		router:     router,
		registerer: deps.Registerer,
	}
	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = tr.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := append(defaults, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// AddHandler consumes topic with fn. Handler names must be unique per Service.
func (s *Service) AddHandler(name, topic string, fn message.NoPublishHandlerFunc) {
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, name)
	s.handlersMu.Unlock()

	s.router.AddNoPublisherHandler(name, topic, s.transport.Subscriber, fn)
	s.Logger.Debug("Registered handler", loggingpkg.LogFields{"handler": name, "topic": topic})
}

// Handlers returns the registered handler names.
func (s *Service) Handlers() []string {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	return append([]string(nil), s.handlers...)
}

// Running is closed once every handler is subscribed.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Run serves HTTP endpoints and the router until ctx is cancelled or the
// router fails. The transport is closed before Run returns. Cancellation
// is not an error.
func (s *Service) Run(ctx context.Context) error {
	servers := s.startHTTPServers()
	defer s.shutdownHTTPServers(servers)
	defer s.closeTransport()

	err := routerRun(s.router, ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the transport without running the router. Run calls it
// on return; calling it again is a no-op.
func (s *Service) Close() {
	s.closeTransport()
}

func (s *Service) closeTransport() {
	s.closeOnce.Do(func() {
		if err := s.transport.Close(); err != nil {
			s.Logger.Warn("Closing transport failed", err, nil)
		}
	})
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with Run.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
	return servers
}

func (s *Service) shutdownHTTPServers(servers []*http.Server) {
	if len(servers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownGrace)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Warn("HTTP server shutdown failed", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}

var errSubscriberClosed = errors.New("subscriber closed")

// deferredSubscriber builds its transport on the first Subscribe and
// delegates to the built subscriber afterwards. A failed build is returned
// to every later Subscribe.
type deferredSubscriber struct {
	build func(context.Context) (transportpkg.Transport, error)

	mu       sync.Mutex
	built    *transportpkg.Transport
	buildErr error
	closed   bool
}

func newDeferredSubscriber(build func(context.Context) (transportpkg.Transport, error)) *deferredSubscriber {
	return &deferredSubscriber{build: build}
}

func (d *deferredSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	sub, err := d.subscriber(ctx)
	if err != nil {
		return nil, err
	}
	return sub.Subscribe(ctx, topic)
}

func (d *deferredSubscriber) subscriber(ctx context.Context) (message.Subscriber, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return nil, errSubscriberClosed
	case d.buildErr != nil:
		return nil, d.buildErr
	case d.built != nil:
		return d.built.Subscriber, nil
	}

	tr, err := d.build(ctx)
	if err != nil {
		d.buildErr = err
		return nil, err
	}
	if tr.Subscriber == nil {
		_ = tr.Close()
		d.buildErr = errspkg.ErrSubscriberRequired
		return nil, d.buildErr
	}
	d.built = &tr
	return tr.Subscriber, nil
}

// Close closes the built transport, if any. Further calls are no-ops.
func (d *deferredSubscriber) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.built == nil {
		return nil
	}
	return d.built.Close()
}
