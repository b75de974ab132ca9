// Package replay steps through a loaded trace, answering each request with
// the next canned response or with a diagnostic when the request is not the
// one the trace expects.
package replay

import (
	"log/slog"
	"sync"

	"github.com/getmockd/tracemock/internal/matching"
	"github.com/getmockd/tracemock/pkg/logging"
	"github.com/getmockd/tracemock/pkg/trace"
)

// State is the engine's position in its lifecycle.
type State int

const (
	// StateIdle means no trace is loaded.
	StateIdle State = iota
	// StateArmed means a trace is loaded and entries remain.
	StateArmed
	// StateExhausted means every entry has been consumed.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies the result of Handle.
type OutcomeKind int

const (
	Matched OutcomeKind = iota + 1
	Mismatched
	Exhausted
)

func (k OutcomeKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Outcome is what the engine decided for one request.
type Outcome struct {
	Kind OutcomeKind
	// Response is the canned response on a match, otherwise the diagnostic.
	Response  trace.Response
	TraceName string
	// Offset is the 1-based ordinal of the entry involved.
	Offset int
	// Generation identifies the trace load that produced this outcome.
	Generation uint64
	// Err is set unless Kind is Matched.
	Err *MismatchError
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State      State  `json:"-"`
	StateName  string `json:"state"`
	TraceName  string `json:"trace,omitempty"`
	Cursor     int    `json:"cursor"`
	Len        int    `json:"entries"`
	Generation uint64 `json:"generation"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithComparator replaces the default method-and-target comparator.
func WithComparator(c Comparator) Option {
	return func(e *Engine) {
		if c != nil {
			e.compare = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.log = logging.Component(logger, "replay")
	}
}

// Engine replays a single trace in order. One mutex covers reading the entry
// at the cursor, comparing it and advancing, so concurrent requests see a
// strict sequence and a Load never interleaves with a match.
type Engine struct {
	mu         sync.Mutex
	compare    Comparator
	log        *slog.Logger
	loaded     bool
	name       string
	entries    []trace.Entry
	cursor     int
	generation uint64
}

// NewEngine creates an idle engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		compare: MethodAndTarget,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load installs t and rewinds the cursor. The engine keeps its own copy of
// the entries. An empty trace leaves the engine exhausted.
func (e *Engine) Load(t *trace.Trace) {
	cp := t.Clone()
	if cp == nil {
		cp = &trace.Trace{}
	}

	e.mu.Lock()
	e.loaded = true
	e.name = cp.Name
	e.entries = cp.Entries
	e.cursor = 0
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	e.log.Info("trace loaded", "trace", cp.Name, "entries", len(cp.Entries), "generation", gen)
}

// mismatchedFields names the fields the comparator inspects that differ
// between expected and actual.
func (e *Engine) mismatchedFields(expected, actual *trace.Request) []string {
	var headers []string
	var body bool
	if fc, ok := e.compare.(FieldComparator); ok {
		headers, body = fc.Fields()
	}
	return matching.Mismatched(matching.Breakdown(expected, actual, headers, body))
}

// Unload discards the trace and returns the engine to idle.
func (e *Engine) Unload() {
	e.mu.Lock()
	wasLoaded := e.loaded
	name := e.name
	e.loaded = false
	e.name = ""
	e.entries = nil
	e.cursor = 0
	e.mu.Unlock()

	if wasLoaded {
		e.log.Info("trace unloaded", "trace", name)
	}
}

// Handle answers one request. It returns ErrIdle when no trace is loaded;
// otherwise the Outcome carries either the canned response or a diagnostic.
// The cursor advances only on a match.
func (e *Engine) Handle(actual *trace.Request) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return nil, ErrIdle
	}

	if e.cursor >= len(e.entries) {
		merr := &MismatchError{
			TraceName: e.name,
			Offset:    len(e.entries),
			Actual:    actual.Clone(),
		}
		e.log.Warn("request after trace exhausted",
			"trace", e.name, "method", actual.Method, "target", actual.Target)
		return e.failure(Exhausted, merr), nil
	}

	expected := &e.entries[e.cursor]
	offset := e.cursor + 1
	if !e.compare.Match(&expected.Request, actual) {
		want := expected.Request.Clone()
		merr := &MismatchError{
			TraceName: e.name,
			Offset:    offset,
			Expected:  &want,
			Actual:    actual.Clone(),
		}
		e.log.Warn("request does not match trace",
			"trace", e.name,
			"offset", offset,
			"expected", expected.Request.Method+" "+expected.Request.Target,
			"actual", actual.Method+" "+actual.Target,
			"fields", e.mismatchedFields(&expected.Request, actual))
		return e.failure(Mismatched, merr), nil
	}

	e.cursor++
	e.log.Debug("request matched",
		"trace", e.name, "offset", offset, "method", actual.Method, "target", actual.Target,
		"status", expected.Response.StatusCode)
	return &Outcome{
		Kind:       Matched,
		Response:   expected.Response.Clone(),
		TraceName:  e.name,
		Offset:     offset,
		Generation: e.generation,
	}, nil
}

func (e *Engine) failure(kind OutcomeKind, merr *MismatchError) *Outcome {
	return &Outcome{
		Kind:       kind,
		Response:   Diagnostic(merr),
		TraceName:  merr.TraceName,
		Offset:     merr.Offset,
		Generation: e.generation,
		Err:        merr,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	switch {
	case !e.loaded:
		return StateIdle
	case e.cursor >= len(e.entries):
		return StateExhausted
	default:
		return StateArmed
	}
}

// Loaded reports whether a trace is installed, exhausted or not.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Cursor returns the index of the next expected entry.
func (e *Engine) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Len returns the number of entries in the loaded trace.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// TraceName returns the name of the loaded trace.
func (e *Engine) TraceName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// Generation counts Load calls.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Status returns a consistent snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stateLocked()
	return Status{
		State:      s,
		StateName:  s.String(),
		TraceName:  e.name,
		Cursor:     e.cursor,
		Len:        len(e.entries),
		Generation: e.generation,
	}
}
