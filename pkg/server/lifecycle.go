package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	mocktls "github.com/getmockd/tracemock/pkg/tls"
)

const shutdownTimeout = 5 * time.Second

// Run starts listening and serving in the background. Calling Run on a
// listening server does nothing.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return nil
	}

	ln, err := net.Listen("tcp", s.bindAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.bindAddr, err)
	}

	scheme := "http"
	if s.cert != nil {
		ln = tls.NewListener(ln, mocktls.ServerConfig(s.cert.TLS))
		scheme = "https"
	}

	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelDebug),
	}
	done := make(chan struct{})
	s.scheme = scheme
	s.httpServer = hs
	s.listener = ln
	s.serveDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", "error", err)
		}
	}()

	s.log.Info("server listening", "address", ln.Addr().String(), "scheme", scheme)
	s.notify(PropertyAddress, PropertyPort)
	return nil
}

// Stop shuts the listener down, waits up to five seconds for in-flight
// requests and clears the resolver's records. Calling Stop on a stopped
// server does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	hs := s.httpServer
	done := s.serveDone
	s.httpServer = nil
	s.listener = nil
	s.serveDone = nil
	s.mu.Unlock()

	if hs == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := hs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
		_ = hs.Close()
	}
	<-done

	s.resolver.Reset()
	s.log.Info("server stopped")
	s.notify(PropertyAddress, PropertyPort)
	return errors.Join(errs...)
}

// Listening reports whether Run has been called without a matching Stop.
func (s *Server) Listening() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpServer != nil
}

func (s *Server) boundAddr() *net.TCPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// Address returns the IP the server is bound to, or "" when stopped.
func (s *Server) Address() string {
	if a := s.boundAddr(); a != nil {
		return a.IP.String()
	}
	return ""
}

// Port returns the bound port, or 0 when stopped.
func (s *Server) Port() int {
	if a := s.boundAddr(); a != nil {
		return a.Port
	}
	return 0
}

// URL returns the base URL of the running server, or "" when stopped.
func (s *Server) URL() string {
	a := s.boundAddr()
	if a == nil {
		return ""
	}
	s.mu.RLock()
	scheme := s.scheme
	s.mu.RUnlock()
	return scheme + "://" + net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

// Client returns an http.Client that resolves names through the server's
// fake resolver and trusts the server's certificate.
func (s *Server) Client() *http.Client {
	t := s.resolver.Transport(nil)
	if cert := s.TLSCertificate(); cert != nil {
		t.TLSClientConfig = mocktls.ClientConfig(cert)
	}
	return &http.Client{Transport: t, Timeout: 30 * time.Second}
}
