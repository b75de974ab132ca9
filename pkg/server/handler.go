package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/tracemock/pkg/httputil"
	"github.com/getmockd/tracemock/pkg/replay"
	"github.com/getmockd/tracemock/pkg/trace"
)

// Route says who answers a request.
type Route int

const (
	RouteReplay Route = iota + 1
	RouteHandler
	RoutePassthrough
)

func (r Route) String() string {
	switch r {
	case RouteReplay:
		return "replay"
	case RouteHandler:
		return "handler"
	case RoutePassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Route reports how the next request would be answered. A loaded trace,
// exhausted or not, always wins. Without one, a registered handler answers
// when online or logging is enabled, and online mode without a handler
// passes through to the network. Anything else is a *ConfigurationError.
func (s *Server) Route() (Route, error) {
	if s.engine.Loaded() {
		return RouteReplay, nil
	}
	route, _, err := s.idleRoute()
	return route, err
}

func (s *Server) idleRoute() (Route, http.Handler, error) {
	s.mu.RLock()
	online, logging, h := s.online, s.logging, s.handler
	s.mu.RUnlock()

	switch {
	case h != nil && (online || logging):
		return RouteHandler, h, nil
	case online:
		return RoutePassthrough, nil, nil
	case logging:
		return 0, nil, &ConfigurationError{Reason: ReasonNoHandler}
	default:
		return 0, nil, &ConfigurationError{Reason: ReasonOffline}
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := s.log.With("request_id", uuid.NewString(), "method", r.Method, "target", r.RequestURI)

	body, err := httputil.ReadBody(r)
	if errors.Is(err, httputil.ErrBodyTooLarge) {
		log.Warn("request body too large", "limit", httputil.MaxBodySize)
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}
	if err != nil {
		log.Error("read request body", "error", err)
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}
	actual := trace.CaptureRequest(r, body)

	// Handle is the authoritative check for a loaded trace: it holds the
	// engine lock across the state test and the cursor update.
	out, err := s.engine.Handle(&actual)
	if err == nil {
		log.Debug("replayed", "outcome", out.Kind.String(), "offset", out.Offset, "status", out.Response.StatusCode)
		httputil.WriteResponse(w, out.Response)
		return
	}
	if !errors.Is(err, replay.ErrIdle) {
		log.Error("replay failed", "error", err)
		httputil.WriteInternalError(w, "replay_error", err.Error())
		return
	}

	route, h, err := s.idleRoute()
	if err != nil {
		log.Error("cannot answer request", "error", err)
		httputil.WriteInternalError(w, configurationError, err.Error())
		return
	}
	log.Debug("routing", "route", route.String())

	rec := s.activeRecording()
	switch route {
	case RouteHandler:
		s.serveHandler(w, r, h, actual, rec)
	case RoutePassthrough:
		s.passthrough(w, r, actual, rec, log)
	}
}

func (s *Server) serveHandler(w http.ResponseWriter, r *http.Request, h http.Handler, actual trace.Request, rec *recordingSession) {
	if rec == nil {
		h.ServeHTTP(w, r)
		return
	}
	cw := &captureWriter{ResponseWriter: w}
	h.ServeHTTP(cw, r)
	rec.add(trace.Entry{
		Request:  actual,
		Response: trace.CaptureResponse(cw.statusCode(), cw.header, cw.body.Bytes()),
	})
}

func (s *Server) passthrough(w http.ResponseWriter, r *http.Request, actual trace.Request, rec *recordingSession, log *slog.Logger) {
	start := time.Now()

	out, err := http.NewRequestWithContext(r.Context(), r.Method, s.upstreamURL(r), bytes.NewReader(actual.Body))
	if err != nil {
		httputil.WriteBadGateway(w, "upstream_error", err.Error())
		return
	}
	httputil.CopyHeaders(out.Header, r.Header)
	httputil.RemoveHopByHopHeaders(out.Header)
	out.Host = stripPort(r.Host, s.Port())

	resp, err := s.upstream.RoundTrip(out)
	if err != nil {
		log.Error("passthrough failed", "url", out.URL.String(), "error", err)
		httputil.WriteBadGateway(w, "upstream_error", err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodySize))
	if err != nil {
		log.Error("read upstream body", "error", err)
		httputil.WriteBadGateway(w, "upstream_error", err.Error())
		return
	}
	log.Debug("passed through", "url", out.URL.String(), "status", resp.StatusCode, "duration", time.Since(start))

	captured := trace.CaptureResponse(resp.StatusCode, resp.Header, respBody)
	if rec != nil {
		rec.add(trace.Entry{Request: actual, Response: captured})
	}
	httputil.WriteResponse(w, captured)
}

// upstreamURL rebuilds the absolute URL the client meant to reach. Clients
// reach the mock through the fake resolver, so the Host header names the
// real service; the mock's own port is dropped from it.
func (s *Server) upstreamURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + stripPort(r.Host, s.Port()) + r.URL.RequestURI()
}

func stripPort(host string, port int) string {
	h, p, err := net.SplitHostPort(host)
	if err != nil || port == 0 || p != strconv.Itoa(port) {
		return host
	}
	if net.ParseIP(h) != nil && net.ParseIP(h).To4() == nil {
		return "[" + h + "]"
	}
	return h
}

// captureWriter tees a handler's response so it can be recorded.
type captureWriter struct {
	http.ResponseWriter
	status int
	header http.Header
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
		c.header = c.ResponseWriter.Header().Clone()
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		c.header = c.ResponseWriter.Header().Clone()
		return http.StatusOK
	}
	return c.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (c *captureWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
