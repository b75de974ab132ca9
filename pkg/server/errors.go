package server

import "errors"

// Server errors.
var (
	ErrNoTraceDirectory = errors.New("no trace directory set")
	ErrRecordingActive  = errors.New("a recording is already in progress")
)

// Reasons carried by ConfigurationError.
const (
	ReasonOffline      = "no trace loaded and online mode disabled"
	ReasonNoHandler    = "logging enabled but no request handler registered"
	configurationError = "configuration_error"
)

// ConfigurationError means the server was asked to answer a request it has
// no way to answer in its current mode.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
