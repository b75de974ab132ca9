// Package server is the mock HTTP server. It owns a fake resolver and a
// replay engine and decides, per request, whether the loaded trace, a
// caller-supplied handler or the real network answers.
//
// Typical test usage:
//
//	srv := server.New()
//	if err := srv.LoadTrace("testdata/list-items.trace"); err != nil { ... }
//	if err := srv.Run(); err != nil { ... }
//	defer srv.Stop()
//	srv.Resolver().AddHost("api.example.com", srv.Address())
//	client := srv.Client()
package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/getmockd/tracemock/pkg/logging"
	"github.com/getmockd/tracemock/pkg/replay"
	"github.com/getmockd/tracemock/pkg/resolver"
	mocktls "github.com/getmockd/tracemock/pkg/tls"
)

// DefaultAddress binds an ephemeral loopback port.
const DefaultAddress = "127.0.0.1:0"

// Property names a server setting that observers are told about.
type Property string

// Observable properties.
const (
	PropertyTraceDirectory Property = "trace-directory"
	PropertyEnableOnline   Property = "enable-online"
	PropertyEnableLogging  Property = "enable-logging"
	PropertyAddress        Property = "address"
	PropertyPort           Property = "port"
	PropertyTLSCertificate Property = "tls-certificate"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger shared by the server, its resolver and its
// replay engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.baseLog = logger
	}
}

// WithAddress sets the host:port Run binds to.
func WithAddress(addr string) Option {
	return func(s *Server) {
		s.bindAddr = addr
	}
}

// WithComparator replaces the replay comparator.
func WithComparator(c replay.Comparator) Option {
	return func(s *Server) {
		s.comparator = c
	}
}

// WithUpstream sets the transport used for online passthrough.
func WithUpstream(rt http.RoundTripper) Option {
	return func(s *Server) {
		s.upstream = rt
	}
}

// WithHandler registers the handler used when no trace is loaded.
func WithHandler(h http.Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithTraceDirectory sets the directory StartTrace resolves names against.
func WithTraceDirectory(dir string) Option {
	return func(s *Server) {
		s.traceDir = dir
	}
}

// WithTLSCertificate makes Run serve HTTPS with cert.
func WithTLSCertificate(cert *mocktls.Certificate) Option {
	return func(s *Server) {
		s.cert = cert
	}
}

// Server is the mode controller. The zero value is not usable; call New.
type Server struct {
	mu sync.RWMutex

	baseLog    *slog.Logger
	log        *slog.Logger
	bindAddr   string
	comparator replay.Comparator
	upstream   http.RoundTripper

	traceDir string
	online   bool
	logging  bool
	handler  http.Handler
	cert     *mocktls.Certificate

	engine   *replay.Engine
	resolver *resolver.Fake

	httpServer *http.Server
	listener   net.Listener
	scheme     string
	serveDone  chan struct{}

	rec *recordingSession

	observers      map[int]func(Property)
	observerOrder  []int
	nextObserverID int
}

// New creates a stopped server with no trace loaded.
func New(opts ...Option) *Server {
	s := &Server{
		bindAddr:  DefaultAddress,
		observers: make(map[int]func(Property)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = logging.Component(s.baseLog, "server")

	engineOpts := []replay.Option{replay.WithLogger(s.baseLog)}
	if s.comparator != nil {
		engineOpts = append(engineOpts, replay.WithComparator(s.comparator))
	}
	s.engine = replay.NewEngine(engineOpts...)
	s.resolver = resolver.NewFake(resolver.WithLogger(s.baseLog))

	if s.upstream == nil {
		s.upstream = http.DefaultTransport.(*http.Transport).Clone()
	}
	return s
}

// Engine exposes the replay engine, mainly for assertions in tests.
func (s *Server) Engine() *replay.Engine {
	return s.engine
}

// Resolver returns the server's fake resolver. It is never nil.
func (s *Server) Resolver() *resolver.Fake {
	return s.resolver
}

// TraceDirectory returns the directory StartTrace uses.
func (s *Server) TraceDirectory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.traceDir
}

// SetTraceDirectory changes the directory StartTrace uses.
func (s *Server) SetTraceDirectory(dir string) {
	s.mu.Lock()
	changed := s.traceDir != dir
	s.traceDir = dir
	s.mu.Unlock()

	if changed {
		s.notify(PropertyTraceDirectory)
	}
}

// EnableOnline reports whether unmatched traffic may reach the real network.
func (s *Server) EnableOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetEnableOnline toggles online mode.
func (s *Server) SetEnableOnline(on bool) {
	s.mu.Lock()
	changed := s.online != on
	s.online = on
	s.mu.Unlock()

	if changed {
		s.log.Info("online mode changed", "enabled", on)
		s.notify(PropertyEnableOnline)
	}
}

// EnableLogging reports whether exchanges are logged to traces.
func (s *Server) EnableLogging() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logging
}

// SetEnableLogging toggles logging mode.
func (s *Server) SetEnableLogging(on bool) {
	s.mu.Lock()
	changed := s.logging != on
	s.logging = on
	s.mu.Unlock()

	if changed {
		s.log.Info("logging mode changed", "enabled", on)
		s.notify(PropertyEnableLogging)
	}
}

// SetHandler registers h for requests that arrive while no trace is
// loaded. A nil handler clears it.
func (s *Server) SetHandler(h http.Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// TLSCertificate returns the certificate Run serves with, or nil for plain
// HTTP.
func (s *Server) TLSCertificate() *mocktls.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cert
}

// SetTLSCertificate sets the certificate used by the next Run. Nil means
// plain HTTP.
func (s *Server) SetTLSCertificate(cert *mocktls.Certificate) {
	s.mu.Lock()
	changed := s.cert != cert
	s.cert = cert
	s.mu.Unlock()

	if changed {
		s.notify(PropertyTLSCertificate)
	}
}

// SetDefaultTLSCertificate generates a self-signed localhost certificate
// and installs it.
func (s *Server) SetDefaultTLSCertificate() (*mocktls.Certificate, error) {
	cert, err := mocktls.Generate(mocktls.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s.SetTLSCertificate(cert)
	return cert, nil
}

// Observe registers fn to be called after a property changes. Calls happen
// outside the server lock, in registration order. The returned function
// removes the observer.
func (s *Server) Observe(fn func(Property)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObserverID
	s.nextObserverID++
	s.observers[id] = fn
	s.observerOrder = append(s.observerOrder, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
		for i, v := range s.observerOrder {
			if v == id {
				s.observerOrder = append(s.observerOrder[:i], s.observerOrder[i+1:]...)
				break
			}
		}
	}
}

func (s *Server) notify(props ...Property) {
	s.mu.RLock()
	fns := make([]func(Property), 0, len(s.observerOrder))
	for _, id := range s.observerOrder {
		fns = append(fns, s.observers[id])
	}
	s.mu.RUnlock()

	for _, p := range props {
		for _, fn := range fns {
			fn(p)
		}
	}
}
