// Package trace models recorded HTTP exchanges and reads and writes them in
// the formats tracemock understands.
//
// A trace is an ordered list of entries. Each entry pairs the request a
// client is expected to send with the response to send back. Traces are
// stored as soup-logger style text (the default), YAML or JSON; the format is
// picked from the file extension.
package trace

import (
	"bytes"
	"net/http"
)

// Request is the expected (or captured) side of an exchange.
type Request struct {
	Method string
	// Target is the request-target as sent on the request line, e.g.
	// "/feeds/default?alt=json".
	Target string
	Header http.Header
	Body   []byte
}

// Response is the canned reply for an entry.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Entry is one request/response pair.
type Entry struct {
	Request  Request
	Response Response
}

// Trace is a named, ordered list of entries.
type Trace struct {
	// Name identifies the trace in diagnostics. Load sets it to the file path.
	Name    string
	Entries []Entry
}

// Len returns the number of entries.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}

// Clone returns a deep copy of t.
func (t *Trace) Clone() *Trace {
	if t == nil {
		return nil
	}
	out := &Trace{Name: t.Name, Entries: make([]Entry, len(t.Entries))}
	for i, e := range t.Entries {
		out.Entries[i] = e.Clone()
	}
	return out
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	return Entry{Request: e.Request.Clone(), Response: e.Response.Clone()}
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	r.Header = cloneHeader(r.Header)
	r.Body = bytes.Clone(r.Body)
	return r
}

// Clone returns a deep copy of r.
func (r Response) Clone() Response {
	r.Header = cloneHeader(r.Header)
	r.Body = bytes.Clone(r.Body)
	return r
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

// CaptureRequest builds a Request from a live server-side request whose body
// has already been read.
func CaptureRequest(req *http.Request, body []byte) Request {
	target := req.RequestURI
	if target == "" && req.URL != nil {
		target = req.URL.RequestURI()
	}
	h := req.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if req.Host != "" && h.Get("Host") == "" {
		h.Set("Host", req.Host)
	}
	return Request{
		Method: req.Method,
		Target: target,
		Header: h,
		Body:   bytes.Clone(body),
	}
}

// CaptureResponse builds a Response from a status, header set and body.
func CaptureResponse(status int, header http.Header, body []byte) Response {
	return Response{
		StatusCode: status,
		Header:     cloneHeader(header),
		Body:       bytes.Clone(body),
	}
}

func canonicalHeader(in map[string][]string) http.Header {
	h := make(http.Header, len(in))
	for k, vs := range in {
		key := http.CanonicalHeaderKey(k)
		h[key] = append(h[key], vs...)
	}
	return h
}
