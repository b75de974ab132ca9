package trace

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is returned when a format name cannot be resolved.
var ErrUnknownFormat = errors.New("unknown trace format")

// ParseError reports malformed or truncated trace content.
type ParseError struct {
	Source string // file path or "<input>"
	Entry  int    // 1-based entry number, 0 if not inside an entry
	Line   int    // 1-based line number, 0 if unknown
	Msg    string
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "<input>"
	}
	switch {
	case e.Entry > 0 && e.Line > 0:
		return fmt.Sprintf("%s:%d: entry %d: %s", src, e.Line, e.Entry, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", src, e.Line, e.Msg)
	case e.Entry > 0:
		return fmt.Sprintf("%s: entry %d: %s", src, e.Entry, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", src, e.Msg)
	}
}
