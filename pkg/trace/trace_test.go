package trace

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Log format
// =============================================================================

func TestLoad_LogFormat(t *testing.T) {
	tr, err := Load("testdata/three_entries.trace")
	require.NoError(t, err)

	assert.Equal(t, "testdata/three_entries.trace", tr.Name)
	require.Len(t, tr.Entries, 3)

	first := tr.Entries[0]
	assert.Equal(t, "GET", first.Request.Method)
	assert.Equal(t, "/one", first.Request.Target)
	assert.Equal(t, "example.com", first.Request.Header.Get("Host"))
	assert.Empty(t, first.Request.Body)
	assert.Equal(t, 200, first.Response.StatusCode)
	assert.Equal(t, "text/plain", first.Response.Header.Get("Content-Type"))
	assert.Equal(t, "first", string(first.Response.Body))

	assert.Equal(t, "second\n", string(tr.Entries[1].Response.Body))

	last := tr.Entries[2]
	assert.Equal(t, "POST", last.Request.Method)
	assert.Equal(t, `{"a":1}`, string(last.Request.Body))
	assert.Equal(t, 404, last.Response.StatusCode)
	assert.Empty(t, last.Response.Body)
}

func TestParse_LogFormatErrors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantEntry int
		wantLine  int
		wantMsg   string
	}{
		{
			name:      "missing response",
			input:     "> GET / HTTP/1.1\n> \n  \n",
			wantEntry: 1,
			wantMsg:   "missing response",
		},
		{
			name:      "unterminated request",
			input:     "> GET / HTTP/1.1\n> Host: x\n",
			wantEntry: 1,
			wantMsg:   "unterminated",
		},
		{
			name:      "bad request line",
			input:     "> GET\n  \n< HTTP/1.1 200 OK\n  \n",
			wantEntry: 1,
			wantLine:  1,
			wantMsg:   "malformed request line",
		},
		{
			name:      "bad status code",
			input:     "> GET / HTTP/1.1\n  \n< HTTP/1.1 abc OK\n  \n",
			wantEntry: 1,
			wantLine:  3,
			wantMsg:   "invalid status code",
		},
		{
			name: "wrong prefix in second entry",
			input: "> GET / HTTP/1.1\n  \n< HTTP/1.1 200 OK\n  \n" +
				"< HTTP/1.1 200 OK\n  \n",
			wantEntry: 2,
			wantLine:  5,
			wantMsg:   "expected line starting with",
		},
		{
			name:      "malformed header",
			input:     "> GET / HTTP/1.1\n> no-colon-here\n  \n",
			wantEntry: 1,
			wantLine:  2,
			wantMsg:   "malformed header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := ParseBytes([]byte(tt.input), FormatLog)
			assert.Nil(t, entries)

			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected *ParseError, got %v", err)
			assert.Equal(t, tt.wantEntry, perr.Entry)
			if tt.wantLine > 0 {
				assert.Equal(t, tt.wantLine, perr.Line)
			}
			assert.Contains(t, perr.Msg, tt.wantMsg)
		})
	}
}

func TestParse_LogFormatToleratesMissingSeparator(t *testing.T) {
	input := "> GET /x HTTP/1.1\n> Accept: */*\n  \n< HTTP/1.1 204 No Content\n  \n"
	entries, err := ParseBytes([]byte(input), FormatLog)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "*/*", entries[0].Request.Header.Get("Accept"))
	assert.Equal(t, 204, entries[0].Response.StatusCode)
}

func TestParse_Empty(t *testing.T) {
	for _, f := range []Format{FormatLog, FormatYAML, FormatJSON} {
		t.Run(string(f), func(t *testing.T) {
			entries, err := ParseBytes(nil, f)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

// =============================================================================
// YAML / JSON
// =============================================================================

func TestLoad_YAMLMatchesLog(t *testing.T) {
	fromLog, err := Load("testdata/three_entries.trace")
	require.NoError(t, err)
	fromYAML, err := Load("testdata/three_entries.yaml")
	require.NoError(t, err)

	require.Len(t, fromYAML.Entries, len(fromLog.Entries))
	for i := range fromLog.Entries {
		assert.Equal(t, fromLog.Entries[i].Request.Method, fromYAML.Entries[i].Request.Method)
		assert.Equal(t, fromLog.Entries[i].Request.Target, fromYAML.Entries[i].Request.Target)
		assert.Equal(t, fromLog.Entries[i].Response.StatusCode, fromYAML.Entries[i].Response.StatusCode)
		assert.Equal(t, string(fromLog.Entries[i].Response.Body), string(fromYAML.Entries[i].Response.Body))
	}
	// Header names are canonicalized on load.
	assert.Equal(t, []string{"example.com"}, fromYAML.Entries[0].Request.Header["Host"])
}

func TestParse_DocumentErrors(t *testing.T) {
	input := `entries:
  - request: {method: GET, target: /a}
    response: {status: 200}
  - request: {method: GET}
    response: {status: 200}
`
	_, err := ParseBytes([]byte(input), FormatYAML)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Entry)
	assert.Equal(t, 4, perr.Line)
	assert.Contains(t, perr.Msg, "target is required")
}

func TestParse_JSONStatusOutOfRange(t *testing.T) {
	input := `{"entries":[{"request":{"method":"GET","target":"/"},"response":{"status":42}}]}`
	_, err := ParseBytes([]byte(input), FormatJSON)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Entry)
	assert.Contains(t, perr.Error(), "invalid response status 42")
}

func TestParse_DocumentNotAMapping(t *testing.T) {
	_, err := ParseBytes([]byte("- a\n- b\n"), FormatYAML)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

// =============================================================================
// Round trips
// =============================================================================

func sampleEntries() []Entry {
	return []Entry{
		{
			Request: Request{
				Method: "PUT",
				Target: "/files/a%20b?x=1",
				Header: http.Header{"Content-Type": {"text/plain"}, "X-Multi": {"1", "2"}},
				Body:   []byte("line one\n\nline three\n"),
			},
			Response: Response{
				StatusCode: 201,
				Header:     http.Header{"Location": {"/files/a%20b"}},
				Body:       []byte("created"),
			},
		},
		{
			Request: Request{Method: "GET", Target: "/bin", Header: http.Header{}},
			Response: Response{
				StatusCode: 200,
				Header:     http.Header{"Content-Type": {"application/octet-stream"}},
				Body:       []byte{0x00, 0xff, 0xfe, 'a'},
			},
		},
	}
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	for _, f := range []Format{FormatLog, FormatYAML, FormatJSON} {
		t.Run(string(f), func(t *testing.T) {
			want := sampleEntries()
			if f == FormatLog {
				// Binary bodies only survive the document formats.
				want = want[:1]
			}

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, f))

			got, err := Parse(&buf, f)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Request.Method, got[i].Request.Method)
				assert.Equal(t, want[i].Request.Target, got[i].Request.Target)
				assert.Equal(t, want[i].Request.Header, got[i].Request.Header)
				assert.Equal(t, want[i].Request.Body, got[i].Request.Body)
				assert.Equal(t, want[i].Response.StatusCode, got[i].Response.StatusCode)
				assert.Equal(t, want[i].Response.Header, got[i].Response.Header)
				assert.Equal(t, want[i].Response.Body, got[i].Response.Body)
			}
		})
	}
}

func TestEncodeParse_LineBreakBodies(t *testing.T) {
	bodies := []string{"\n", "\n\n", "\r\n", "\n\nx", "x\n\n\n", " \n"}
	for _, f := range []Format{FormatLog, FormatYAML, FormatJSON} {
		for _, body := range bodies {
			if f == FormatLog && strings.Contains(body, "\r") {
				continue
			}
			t.Run(fmt.Sprintf("%s/%q", f, body), func(t *testing.T) {
				want := []Entry{{
					Request:  Request{Method: "POST", Target: "/", Header: http.Header{}, Body: []byte(body)},
					Response: Response{StatusCode: 200, Header: http.Header{}, Body: []byte(body)},
				}}

				var buf bytes.Buffer
				require.NoError(t, Encode(&buf, want, f))
				got, err := Parse(&buf, f)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, body, string(got[0].Request.Body))
				assert.Equal(t, body, string(got[0].Response.Body))
			})
		}
	}
}

func TestEncodeBody_FallsBackToBase64(t *testing.T) {
	text, b64 := encodeBody([]byte("\n"))
	assert.Empty(t, text)
	assert.Equal(t, "Cg==", b64)

	text, b64 = encodeBody([]byte("plain\n"))
	assert.Equal(t, "plain\n", text)
	assert.Empty(t, b64)
}

func TestEncodeParse_HeaderWhitespace(t *testing.T) {
	want := []Entry{{
		Request:  Request{Method: "GET", Target: "/", Header: http.Header{"X-Pad": {" sp ", "tail "}}},
		Response: Response{StatusCode: 204, Header: http.Header{"X-Empty": {""}}},
	}}
	for _, f := range []Format{FormatLog, FormatYAML, FormatJSON} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, f))
			got, err := Parse(&buf, f)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, want[0].Request.Header, got[0].Request.Header)
			assert.Equal(t, want[0].Response.Header, got[0].Response.Header)
		})
	}
}

func TestParse_LogFormatCRLF(t *testing.T) {
	lf := "> GET /test-file HTTP/1.1\n> Host: example.com\n> \n  \n" +
		"< HTTP/1.1 200 OK\n< Content-Type: text/plain\n< \n< hello\n  \n"
	crlf := strings.ReplaceAll(lf, "\n", "\r\n")

	want, err := ParseBytes([]byte(lf), FormatLog)
	require.NoError(t, err)
	got, err := ParseBytes([]byte(crlf), FormatLog)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, want[0].Request.Header, got[0].Request.Header)
	assert.Equal(t, []string{"example.com"}, got[0].Request.Header["Host"])
	assert.Equal(t, "hello", string(got[0].Response.Body))
}

func TestEncode_LogLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []Entry{{
		Request:  Request{Method: "GET", Target: "/test-file", Header: http.Header{}},
		Response: Response{StatusCode: 404, Header: http.Header{}},
	}}, FormatLog))

	want := "> GET /test-file HTTP/1.1\n> \n  \n< HTTP/1.1 404 Not Found\n< \n  \n"
	assert.Equal(t, want, buf.String())
}

func TestSave_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	tr := &Trace{Name: "x", Entries: sampleEntries()}
	require.NoError(t, Save(path, tr))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 2)

	leftovers, err := filepath.Glob(filepath.Join(dir, "nested", ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.trace"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// =============================================================================
// Formats and helpers
// =============================================================================

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.YML"))
	assert.Equal(t, FormatJSON, FormatFromPath("b.json"))
	assert.Equal(t, FormatLog, FormatFromPath("b.trace"))
	assert.Equal(t, FormatLog, FormatFromPath("server_logging_trace_success"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("har")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestCaptureRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.example.com/v1/items?limit=2", strings.NewReader("ignored"))
	req.Header.Set("Accept", "application/json")

	got := CaptureRequest(req, []byte(`{"x":1}`))
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "http://api.example.com/v1/items?limit=2", got.Target)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "api.example.com", got.Header.Get("Host"))
	assert.Equal(t, `{"x":1}`, string(got.Body))
}

func TestClone_IsDeep(t *testing.T) {
	orig := &Trace{Name: "t", Entries: sampleEntries()}
	cp := orig.Clone()

	cp.Entries[0].Response.Body[0] = 'X'
	cp.Entries[0].Request.Header.Set("Content-Type", "changed")

	assert.Equal(t, byte('c'), orig.Entries[0].Response.Body[0])
	assert.Equal(t, "text/plain", orig.Entries[0].Request.Header.Get("Content-Type"))
	assert.Equal(t, 0, (*Trace)(nil).Len())
}
