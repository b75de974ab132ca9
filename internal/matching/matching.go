package matching

import (
	"bytes"
	"net/http"
	"slices"

	"github.com/getmockd/tracemock/pkg/trace"
)

// MatchMethod compares HTTP methods. Methods are case-sensitive tokens.
func MatchMethod(expected, actual string) bool {
	return expected == actual
}

// MatchTarget compares request-targets exactly, including the query string.
func MatchTarget(expected, actual string) bool {
	return expected == actual
}

// MatchHeader reports whether both header sets carry the same values, in the
// same order, for name.
func MatchHeader(name string, expected, actual http.Header) bool {
	return slices.Equal(expected.Values(name), actual.Values(name))
}

// MatchHeaders reports whether every named header matches.
func MatchHeaders(names []string, expected, actual http.Header) bool {
	for _, name := range names {
		if !MatchHeader(name, expected, actual) {
			return false
		}
	}
	return true
}

// MatchBody compares bodies byte for byte. A nil body equals an empty one.
func MatchBody(expected, actual []byte) bool {
	return bytes.Equal(expected, actual)
}

// FieldResult describes whether a single field matched.
type FieldResult struct {
	Field    string `json:"field"`
	Matched  bool   `json:"matched"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Breakdown compares method and target, then each named header, then the body
// when withBody is set. Every field is evaluated.
func Breakdown(expected, actual *trace.Request, headers []string, withBody bool) []FieldResult {
	results := []FieldResult{
		{
			Field:    "method",
			Matched:  MatchMethod(expected.Method, actual.Method),
			Expected: expected.Method,
			Actual:   actual.Method,
		},
		{
			Field:    "target",
			Matched:  MatchTarget(expected.Target, actual.Target),
			Expected: expected.Target,
			Actual:   actual.Target,
		},
	}

	for _, name := range headers {
		key := http.CanonicalHeaderKey(name)
		results = append(results, FieldResult{
			Field:    "header:" + key,
			Matched:  MatchHeader(key, expected.Header, actual.Header),
			Expected: orMissing(expected.Header.Get(key)),
			Actual:   orMissing(actual.Header.Get(key)),
		})
	}

	if withBody {
		results = append(results, FieldResult{
			Field:    "body",
			Matched:  MatchBody(expected.Body, actual.Body),
			Expected: truncate(string(expected.Body), 200),
			Actual:   truncate(string(actual.Body), 200),
		})
	}
	return results
}

// Mismatched returns the names of the fields that did not match.
func Mismatched(results []FieldResult) []string {
	var out []string
	for _, r := range results {
		if !r.Matched {
			out = append(out, r.Field)
		}
	}
	return out
}

func orMissing(s string) string {
	if s == "" {
		return "(missing)"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
