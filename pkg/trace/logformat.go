package trace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// The log format mirrors the libsoup logger output:
//
//	> GET /test-file HTTP/1.1
//	> Host: example.com
//	>
//	  (two spaces terminate a message)
//	< HTTP/1.1 404 Not Found
//	< Content-Type: text/plain
//	<
//	< body line
//
// Every message ends with a line holding exactly two spaces. Body lines are
// joined with "\n". Lines may end in "\r\n"; the "\r" is dropped, so bodies
// containing carriage returns only survive the YAML and JSON formats. A
// header value is everything after the colon and one optional space.

const (
	requestPrefix  = '>'
	responsePrefix = '<'
	terminator     = "  "
	httpVersion    = "HTTP/1.1"
)

type lineReader struct {
	r    *bufio.Reader
	line int
	// peeked holds a line pushed back by unread.
	peeked *string
}

func (lr *lineReader) next() (string, error) {
	if lr.peeked != nil {
		s := *lr.peeked
		lr.peeked = nil
		lr.line++
		return s, nil
	}
	s, err := lr.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	lr.line++
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

func (lr *lineReader) unread(s string) {
	lr.peeked = &s
	lr.line--
}

// message is one prefixed block: a start line, headers and body lines.
type message struct {
	start     string
	startLine int
	header    http.Header
	body      []byte
}

func parseLog(r io.Reader, source string) ([]Entry, error) {
	lr := &lineReader{r: bufio.NewReader(r)}
	var entries []Entry

	for {
		if err := skipBlank(lr); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, err
		}

		n := len(entries) + 1
		req, err := readMessage(lr, requestPrefix, source, n)
		if err != nil {
			return nil, err
		}
		method, target, err := parseRequestLine(req.start)
		if err != nil {
			return nil, &ParseError{Source: source, Entry: n, Line: req.startLine, Msg: err.Error()}
		}

		if err := skipBlank(lr); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ParseError{Source: source, Entry: n, Line: lr.line, Msg: "truncated entry: missing response"}
			}
			return nil, err
		}
		resp, err := readMessage(lr, responsePrefix, source, n)
		if err != nil {
			return nil, err
		}
		status, err := parseStatusLine(resp.start)
		if err != nil {
			return nil, &ParseError{Source: source, Entry: n, Line: resp.startLine, Msg: err.Error()}
		}

		entries = append(entries, Entry{
			Request:  Request{Method: method, Target: target, Header: req.header, Body: req.body},
			Response: Response{StatusCode: status, Header: resp.header, Body: resp.body},
		})
	}
}

// skipBlank consumes blank lines between messages and leaves the first
// non-blank line unread.
func skipBlank(lr *lineReader) error {
	for {
		s, err := lr.next()
		if err != nil {
			return err
		}
		if strings.TrimSpace(s) != "" {
			lr.unread(s)
			return nil
		}
	}
}

func readMessage(lr *lineReader, prefix byte, source string, entry int) (*message, error) {
	fail := func(msg string) error {
		return &ParseError{Source: source, Entry: entry, Line: lr.line, Msg: msg}
	}
	strip := func(s string) (string, bool) {
		if len(s) == 0 || s[0] != prefix {
			return "", false
		}
		return strings.TrimPrefix(s[1:], " "), true
	}

	first, err := lr.next()
	if err != nil {
		return nil, fail("unexpected end of input")
	}
	start, ok := strip(first)
	if !ok {
		return nil, fail(fmt.Sprintf("expected line starting with %q, got %q", string(prefix), first))
	}
	m := &message{start: start, startLine: lr.line, header: http.Header{}}

	inBody := false
	var body []string
	for {
		s, err := lr.next()
		if err != nil {
			return nil, fail("unterminated message: missing two-space terminator line")
		}
		if s == terminator {
			break
		}
		content, ok := strip(s)
		if !ok {
			return nil, fail(fmt.Sprintf("expected line starting with %q, got %q", string(prefix), s))
		}
		if inBody {
			body = append(body, content)
			continue
		}
		if content == "" {
			inBody = true
			continue
		}
		name, value, found := strings.Cut(content, ":")
		if !found || strings.TrimSpace(name) == "" {
			return nil, fail(fmt.Sprintf("malformed header line %q", content))
		}
		m.header.Add(strings.TrimSpace(name), strings.TrimPrefix(value, " "))
	}
	if len(body) > 0 {
		m.body = []byte(strings.Join(body, "\n"))
	}
	return m, nil
}

func parseRequestLine(s string) (method, target string, err error) {
	parts := strings.Fields(s)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return "", "", fmt.Errorf("malformed request line %q", s)
	}
	return parts[0], parts[1], nil
}

func parseStatusLine(s string) (int, error) {
	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", s)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return 0, fmt.Errorf("invalid status code %q", parts[1])
	}
	return code, nil
}

func encodeLog(w io.Writer, entries []Entry) error {
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		writeMessage(&buf, requestPrefix,
			fmt.Sprintf("%s %s %s", e.Request.Method, e.Request.Target, httpVersion),
			e.Request.Header, e.Request.Body)
		writeMessage(&buf, responsePrefix,
			fmt.Sprintf("%s %d %s", httpVersion, e.Response.StatusCode, http.StatusText(e.Response.StatusCode)),
			e.Response.Header, e.Response.Body)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeMessage(buf *bytes.Buffer, prefix byte, start string, h http.Header, body []byte) {
	line := func(s string) {
		buf.WriteByte(prefix)
		buf.WriteByte(' ')
		buf.WriteString(s)
		buf.WriteByte('\n')
	}

	line(strings.TrimRight(start, " "))

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			line(k + ": " + v)
		}
	}

	line("")
	if len(body) > 0 {
		for _, l := range strings.Split(string(body), "\n") {
			line(l)
		}
	}
	buf.WriteString(terminator)
	buf.WriteByte('\n')
}
