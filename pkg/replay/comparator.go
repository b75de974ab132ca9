package replay

import (
	"fmt"
	"net/http"

	"github.com/getmockd/tracemock/internal/matching"
	"github.com/getmockd/tracemock/pkg/trace"
)

// Comparator decides whether actual is the request the trace expects.
type Comparator interface {
	Match(expected, actual *trace.Request) bool
}

// ComparatorFunc adapts an ordinary function to Comparator.
type ComparatorFunc func(expected, actual *trace.Request) bool

// Match calls f(expected, actual).
func (f ComparatorFunc) Match(expected, actual *trace.Request) bool {
	return f(expected, actual)
}

// FieldComparator is a Comparator that also inspects headers or the body.
// The engine uses Fields to report which of them differed on a mismatch.
type FieldComparator interface {
	Comparator
	Fields() (headers []string, body bool)
}

// Comparator names accepted by ComparatorByName.
const (
	ComparatorMethodTarget = "method-target"
	ComparatorStrict       = "strict"
)

// MethodAndTarget matches on HTTP method and request-target only. It is the
// default comparator.
var MethodAndTarget Comparator = ComparatorFunc(matchMethodAndTarget)

func matchMethodAndTarget(expected, actual *trace.Request) bool {
	return matching.MatchMethod(expected.Method, actual.Method) &&
		matching.MatchTarget(expected.Target, actual.Target)
}

type strict struct {
	headers []string
}

// Strict matches method and target, the listed headers and the body.
func Strict(headers ...string) FieldComparator {
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = http.CanonicalHeaderKey(h)
	}
	return strict{headers: names}
}

func (s strict) Match(expected, actual *trace.Request) bool {
	return matchMethodAndTarget(expected, actual) &&
		matching.MatchHeaders(s.headers, expected.Header, actual.Header) &&
		matching.MatchBody(expected.Body, actual.Body)
}

func (s strict) Fields() ([]string, bool) {
	return append([]string(nil), s.headers...), true
}

// ComparatorByName resolves a comparator from configuration. headers only
// applies to the strict comparator.
func ComparatorByName(name string, headers []string) (Comparator, error) {
	switch name {
	case "", ComparatorMethodTarget:
		return MethodAndTarget, nil
	case ComparatorStrict:
		return Strict(headers...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownComparator, name)
	}
}
