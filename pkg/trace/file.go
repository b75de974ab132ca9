package trace

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies an on-disk trace encoding.
type Format string

// Supported formats.
const (
	FormatLog  Format = "log"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	switch f {
	case FormatLog, FormatYAML, FormatJSON:
		return true
	}
	return false
}

// ParseFormat resolves a format name such as "yaml" or "json".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if f == "yml" {
		f = FormatYAML
	}
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// FormatFromPath picks the format from a file extension. Anything that is
// not .yaml, .yml or .json is read as a log trace.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatLog
	}
}

// Parse reads all entries from r. On error no entries are returned.
func Parse(r io.Reader, format Format) ([]Entry, error) {
	return parse(r, format, "")
}

// ParseBytes is Parse over an in-memory buffer.
func ParseBytes(data []byte, format Format) ([]Entry, error) {
	return parse(bytes.NewReader(data), format, "")
}

func parse(r io.Reader, format Format, source string) ([]Entry, error) {
	switch format {
	case FormatYAML, FormatJSON:
		return parseDocument(r, source)
	case FormatLog, "":
		return parseLog(r, source)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Load reads the trace stored at path. The trace is named after the path.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := parse(f, FormatFromPath(path), path)
	if err != nil {
		return nil, err
	}
	return &Trace{Name: path, Entries: entries}, nil
}

// Encode writes entries to w in the given format.
func Encode(w io.Writer, entries []Entry, format Format) error {
	switch format {
	case FormatYAML:
		return encodeYAML(w, entries)
	case FormatJSON:
		return encodeJSON(w, entries)
	case FormatLog, "":
		return encodeLog(w, entries)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Save writes t to path in the format implied by its extension. The file is
// written to a temporary sibling first and renamed into place.
func Save(path string, t *Trace) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trace directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	var entries []Entry
	if t != nil {
		entries = t.Entries
	}
	if err := Encode(tmp, entries, FormatFromPath(path)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename trace: %w", err)
	}
	return nil
}
