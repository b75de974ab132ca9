// Package httputil holds the small HTTP helpers shared by the server and
// the passthrough path: JSON error bodies, writing canned responses and
// header copying.
package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/getmockd/tracemock/pkg/trace"
)

// MaxBodySize caps how much of a request or upstream response body is read.
const MaxBodySize = 10 * 1024 * 1024

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes {"error": errCode, "message": message}.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, map[string]string{
		"error":   errCode,
		"message": message,
	})
}

// WriteInternalError writes a 500 JSON error.
func WriteInternalError(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusInternalServerError, errCode, message)
}

// WriteBadGateway writes a 502 JSON error.
func WriteBadGateway(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusBadGateway, errCode, message)
}

// WriteResponse writes a canned trace response verbatim. Content-Length is
// set from the body; hop-by-hop headers recorded in the trace are dropped.
// Content-Type and Date are only sent when the trace has them.
func WriteResponse(w http.ResponseWriter, resp trace.Response) {
	h := w.Header()
	CopyHeaders(h, resp.Header)
	RemoveHopByHopHeaders(h)
	h.Del("Content-Length")
	// A nil entry stops net/http from sniffing a Content-Type or adding a
	// Date the trace never had.
	for _, name := range []string{"Content-Type", "Date"} {
		if _, ok := h[name]; !ok {
			h[name] = nil
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	allowBody := bodyAllowed(status)
	if allowBody {
		h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(status)
	if allowBody && len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

// ErrBodyTooLarge is returned by ReadBody for bodies over MaxBodySize.
var ErrBodyTooLarge = errors.New("request body exceeds maximum size")

// ReadBody reads r's body and replaces it with a re-readable copy. Bodies
// larger than MaxBodySize fail with ErrBodyTooLarge rather than being cut
// short.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, MaxBodySize)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// CopyHeaders appends every value in src to dst.
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHopHeaders deletes connection-scoped headers, including any
// named in the Connection header.
func RemoveHopByHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range splitTokens(v) {
			h.Del(name)
		}
	}
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

func splitTokens(v string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' || v[i] == ' ' || v[i] == '\t' {
			if start >= 0 {
				out = append(out, v[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return out
}
