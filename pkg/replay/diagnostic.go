package replay

import (
	"net/http"
	"strconv"

	"github.com/getmockd/tracemock/pkg/trace"
)

// Diagnostic response headers.
const (
	HeaderTraceFile   = "X-Mock-Trace-File"
	HeaderTraceOffset = "X-Mock-Trace-File-Offset"
)

// Diagnostic builds the 400 response sent for a mismatch or an exhausted
// trace. The body is err.Error().
func Diagnostic(err *MismatchError) trace.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(HeaderTraceFile, err.TraceName)
	h.Set(HeaderTraceOffset, strconv.Itoa(err.Offset))
	return trace.Response{
		StatusCode: http.StatusBadRequest,
		Header:     h,
		Body:       []byte(err.Error()),
	}
}
