package server

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/tracemock/internal/future"
	"github.com/getmockd/tracemock/pkg/trace"
)

// recordingSession accumulates exchanges until EndTrace writes them.
type recordingSession struct {
	mu      sync.Mutex
	path    string
	entries []trace.Entry
}

func (r *recordingSession) add(e trace.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *recordingSession) snapshot() *trace.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&trace.Trace{Name: r.path, Entries: r.entries}).Clone()
}

// LoadTrace parses the trace at path and makes it the active trace. On a
// parse error the previously loaded trace, if any, stays active.
func (s *Server) LoadTrace(path string) error {
	t, err := trace.Load(path)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}
	s.engine.Load(t)
	return nil
}

// LoadTraceAsync loads path on another goroutine. The Future completes with
// the same error LoadTrace would return, or ctx's error if ctx ends first.
func (s *Server) LoadTraceAsync(ctx context.Context, path string) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		t, err := trace.Load(path)
		if err != nil {
			return struct{}{}, fmt.Errorf("load trace: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return struct{}{}, err
		}
		s.engine.Load(t)
		return struct{}{}, nil
	})
}

// Load makes an in-memory trace active.
func (s *Server) Load(t *trace.Trace) {
	s.engine.Load(t)
}

// UnloadTrace deactivates the current trace.
func (s *Server) UnloadTrace() {
	s.engine.Unload()
}

// StartTrace begins a trace named name inside the trace directory. See
// StartTraceFull.
func (s *Server) StartTrace(name string) error {
	dir := s.TraceDirectory()
	if dir == "" {
		return ErrNoTraceDirectory
	}
	return s.StartTraceFull(filepath.Join(dir, name))
}

// StartTraceFull begins a trace stored at path. Offline, the trace is
// loaded for replay. Online with logging enabled, a recording starts and
// EndTrace writes it to path. Online without logging, traffic passes
// through and nothing is recorded.
func (s *Server) StartTraceFull(path string) error {
	s.mu.Lock()
	online, logging := s.online, s.logging
	if online && logging {
		if s.rec != nil {
			s.mu.Unlock()
			return ErrRecordingActive
		}
		s.rec = &recordingSession{path: path}
	}
	s.mu.Unlock()

	switch {
	case !online:
		return s.LoadTrace(path)
	case logging:
		s.engine.Unload()
		s.log.Info("recording started", "path", path)
	}
	return nil
}

// EndTrace finishes the current trace: an active recording is written to
// disk and any loaded trace is unloaded.
func (s *Server) EndTrace() error {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()

	s.engine.Unload()

	if rec == nil {
		return nil
	}
	t := rec.snapshot()
	if err := trace.Save(rec.path, t); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	s.log.Info("recording saved", "path", rec.path, "entries", len(t.Entries))
	return nil
}

// Recording reports whether a recording is in progress.
func (s *Server) Recording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec != nil
}

func (s *Server) activeRecording() *recordingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// Traces lists regular files in the trace directory matching a doublestar
// pattern such as "**/*.trace". Paths are relative to the directory. An
// empty pattern matches everything.
func (s *Server) Traces(pattern string) ([]string, error) {
	dir := s.TraceDirectory()
	if dir == "" {
		return nil, ErrNoTraceDirectory
	}
	if pattern == "" {
		pattern = "**"
	}
	fsys := os.DirFS(dir)
	var out []string
	err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
		if d.Type().IsRegular() {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	return out, nil
}
