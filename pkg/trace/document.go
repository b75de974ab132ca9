package trace

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// document is the YAML/JSON representation of a trace.
type document struct {
	Name    string     `yaml:"name,omitempty" json:"name,omitempty"`
	Entries []docEntry `yaml:"entries" json:"entries"`
}

type docEntry struct {
	Request  docRequest  `yaml:"request" json:"request"`
	Response docResponse `yaml:"response" json:"response"`
}

type docRequest struct {
	Method     string              `yaml:"method" json:"method"`
	Target     string              `yaml:"target" json:"target"`
	Headers    map[string][]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body       string              `yaml:"body,omitempty" json:"body,omitempty"`
	BodyBase64 string              `yaml:"bodyBase64,omitempty" json:"bodyBase64,omitempty"`
}

type docResponse struct {
	Status     int                 `yaml:"status" json:"status"`
	Headers    map[string][]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body       string              `yaml:"body,omitempty" json:"body,omitempty"`
	BodyBase64 string              `yaml:"bodyBase64,omitempty" json:"bodyBase64,omitempty"`
}

// parseDocument reads YAML or JSON. JSON is accepted by the YAML decoder, so
// both formats share this path and report line numbers the same way.
func parseDocument(r io.Reader, source string) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ParseError{Source: source, Msg: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, &ParseError{Source: source, Line: top.Line, Msg: "expected a mapping with an entries list"}
	}

	var list *yaml.Node
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value == "entries" {
			list = top.Content[i+1]
			break
		}
	}
	if list == nil || list.Tag == "!!null" {
		return nil, nil
	}
	if list.Kind != yaml.SequenceNode {
		return nil, &ParseError{Source: source, Line: list.Line, Msg: "entries must be a list"}
	}

	entries := make([]Entry, 0, len(list.Content))
	for i, node := range list.Content {
		n := i + 1
		var de docEntry
		if err := node.Decode(&de); err != nil {
			return nil, &ParseError{Source: source, Entry: n, Line: node.Line, Msg: err.Error()}
		}
		e, err := de.entry()
		if err != nil {
			return nil, &ParseError{Source: source, Entry: n, Line: node.Line, Msg: err.Error()}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (de docEntry) entry() (Entry, error) {
	if de.Request.Method == "" {
		return Entry{}, errors.New("request method is required")
	}
	if de.Request.Target == "" {
		return Entry{}, errors.New("request target is required")
	}
	if de.Response.Status < 100 || de.Response.Status > 999 {
		return Entry{}, fmt.Errorf("invalid response status %d", de.Response.Status)
	}
	reqBody, err := decodeBody(de.Request.Body, de.Request.BodyBase64)
	if err != nil {
		return Entry{}, fmt.Errorf("request body: %w", err)
	}
	respBody, err := decodeBody(de.Response.Body, de.Response.BodyBase64)
	if err != nil {
		return Entry{}, fmt.Errorf("response body: %w", err)
	}
	return Entry{
		Request: Request{
			Method: de.Request.Method,
			Target: de.Request.Target,
			Header: canonicalHeader(de.Request.Headers),
			Body:   reqBody,
		},
		Response: Response{
			StatusCode: de.Response.Status,
			Header:     canonicalHeader(de.Response.Headers),
			Body:       respBody,
		},
	}, nil
}

func decodeBody(text, b64 string) ([]byte, error) {
	if b64 == "" {
		if text == "" {
			return nil, nil
		}
		return []byte(text), nil
	}
	if text != "" {
		return nil, errors.New("body and bodyBase64 are mutually exclusive")
	}
	return base64.StdEncoding.DecodeString(b64)
}

// encodeBody keeps valid UTF-8 bodies readable and falls back to base64 for
// anything the YAML scalar encoding would not reproduce byte for byte.
func encodeBody(b []byte) (text, b64 string) {
	if utf8.Valid(b) && yamlRoundTrips(string(b)) {
		return string(b), ""
	}
	return "", base64.StdEncoding.EncodeToString(b)
}

// yamlRoundTrips reports whether s survives encoding as a nested mapping
// value. yaml.v3 emits bodies made only of line breaks as keep-chomped block
// scalars that decode with fewer newlines.
func yamlRoundTrips(s string) bool {
	if s != "" && strings.Trim(s, "\r\n") == "" {
		return false
	}
	type wrapped struct {
		Entries []map[string]string `yaml:"entries"`
	}
	in := wrapped{Entries: []map[string]string{{"body": s}}}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(in); err != nil {
		return false
	}
	if err := enc.Close(); err != nil {
		return false
	}
	var out wrapped
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		return false
	}
	return len(out.Entries) == 1 && out.Entries[0]["body"] == s
}

func toDocument(entries []Entry) document {
	doc := document{Entries: make([]docEntry, len(entries))}
	for i, e := range entries {
		de := docEntry{
			Request: docRequest{
				Method:  e.Request.Method,
				Target:  e.Request.Target,
				Headers: e.Request.Header,
			},
			Response: docResponse{
				Status:  e.Response.StatusCode,
				Headers: e.Response.Header,
			},
		}
		if len(de.Request.Headers) == 0 {
			de.Request.Headers = nil
		}
		if len(de.Response.Headers) == 0 {
			de.Response.Headers = nil
		}
		de.Request.Body, de.Request.BodyBase64 = encodeBody(e.Request.Body)
		de.Response.Body, de.Response.BodyBase64 = encodeBody(e.Response.Body)
		doc.Entries[i] = de
	}
	return doc
}

func encodeYAML(w io.Writer, entries []Entry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toDocument(entries)); err != nil {
		return err
	}
	return enc.Close()
}

func encodeJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(toDocument(entries))
}
