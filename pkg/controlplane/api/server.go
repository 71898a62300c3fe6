package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/controlplane/api/handlers"
)

var (
	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("control plane already started")

	// ErrNetworkDown is returned by Start when no network is connected.
	ErrNetworkDown = errors.New("network not connected")
)

// jobQueueLen bounds requests waiting for the service loop.
const jobQueueLen = 32

// Metrics records admin request outcomes. A nil Metrics disables collection.
type Metrics interface {
	ObserveRequest(route string, status int, duration time.Duration)
}

// NetworkStatus reports whether the network transport is up.
type NetworkStatus interface {
	Connected() bool
}

// Announcer advertises the admin page while the server runs.
type Announcer interface {
	Announce(port int) (stop func(), err error)
}

// Job states. A job is run by the loop or abandoned by its waiting
// connection, never both.
const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	w      http.ResponseWriter
	r      *http.Request
	state  atomic.Int32
	done   chan struct{}
	queued time.Time
}

// state exists only while the server runs.
type state struct {
	listener   net.Listener
	server     *http.Server
	unannounce func()
}

// Server is the admin web server.
//
// net/http accepts connections on its own goroutines, but every handler
// runs inside Service on the scheduler goroutine: connections queue a job
// and wait for the loop to execute it.
type Server struct {
	config    APIConfig
	handler   http.Handler
	network   NetworkStatus
	announcer Announcer
	metrics   Metrics

	jobs  chan *job
	state *state
}

// Option configures a Server.
type Option func(*Server)

// WithNetworkStatus gates Start on a network probe.
func WithNetworkStatus(n NetworkStatus) Option {
	return func(s *Server) { s.network = n }
}

// WithAnnouncer advertises the server while it runs.
func WithAnnouncer(a Announcer) Option {
	return func(s *Server) { s.announcer = a }
}

// WithMetrics records request metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a stopped server. Call Start to listen.
func NewServer(config APIConfig, deps Deps, opts ...Option) *Server {
	config.ApplyDefaults()

	s := &Server{
		config:  config,
		handler: NewRouter(config, deps),
		jobs:    make(chan *job, jobQueueLen),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Running reports whether the server holds a listener.
func (s *Server) Running() bool {
	return s.state != nil
}

// Addr is the listening address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	if s.state == nil {
		return nil
	}
	return s.state.listener.Addr()
}

// Start binds the configured interface URL and begins accepting
// connections. It does not block.
func (s *Server) Start(ctx context.Context) error {
	if s.state != nil {
		return ErrAlreadyStarted
	}
	if s.network != nil && !s.network.Connected() {
		logger.WarnCtx(ctx, "Network not connected, control plane not started")
		return ErrNetworkDown
	}

	addr, err := s.config.ListenAddr()
	if err != nil {
		return fmt.Errorf("invalid interface URL: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      http.HandlerFunc(s.enqueue),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	st := &state{listener: ln, server: srv}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Control plane server failed", logger.Err(err))
		}
	}()

	if s.announcer != nil {
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			stop, err := s.announcer.Announce(tcp.Port)
			if err != nil {
				logger.Warn("mDNS advertisement failed", logger.Err(err))
			} else {
				st.unannounce = stop
			}
		}
	}

	s.state = st
	logger.InfoCtx(ctx, "Control plane listening", "address", ln.Addr().String(), "url", s.config.InterfaceURL)
	return nil
}

// Stop shuts the server down gracefully. Queued requests are still served
// while connections drain. Stop on a stopped server does nothing.
func (s *Server) Stop(ctx context.Context) error {
	st := s.state
	if st == nil {
		return nil
	}
	s.state = nil

	if st.unannounce != nil {
		st.unannounce()
	}

	done := make(chan error, 1)
	go func() { done <- st.server.Shutdown(ctx) }()

	for {
		select {
		case err := <-done:
			if err != nil {
				_ = st.server.Close()
				logger.Error("Control plane shutdown error", logger.Err(err))
				return fmt.Errorf("control plane shutdown: %w", err)
			}
			logger.Info("Control plane stopped")
			return nil
		case j := <-s.jobs:
			s.run(j)
		}
	}
}

// Service runs the requests queued since the last call. It never blocks
// waiting for new ones.
func (s *Server) Service(context.Context) {
	for n := len(s.jobs); n > 0; n-- {
		select {
		case j := <-s.jobs:
			s.run(j)
		default:
			return
		}
	}
}

func (s *Server) run(j *job) {
	if !j.state.CompareAndSwap(jobQueued, jobRunning) {
		return
	}
	defer close(j.done)
	s.handler.ServeHTTP(j.w, j.r)
}

// enqueue is the net/http entry point. It hands the request to the loop
// and waits for it to be served.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	j := &job{w: ww, r: r, done: make(chan struct{}), queued: time.Now()}

	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveRequest(routeLabel(r.URL.Path), ww.Status(), time.Since(j.queued))
		}
	}()

	select {
	case s.jobs <- j:
	default:
		handlers.WriteText(ww, http.StatusBadRequest, handlers.MsgBusy)
		return
	}

	timer := time.NewTimer(s.config.HandlerTimeout)
	defer timer.Stop()

	select {
	case <-j.done:
		return
	case <-r.Context().Done():
	case <-timer.C:
	}

	if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
		if r.Context().Err() == nil {
			handlers.WriteText(ww, http.StatusBadRequest, handlers.MsgBusy)
		}
		return
	}
	<-j.done
}
