// Package matching holds the field-level comparisons used to decide whether
// an incoming request is the one a trace expects next.
//
// Comparisons are exact. Header names are case-insensitive; header values,
// methods, request-targets and bodies are compared byte for byte.
//
// Breakdown reports every compared field without short-circuiting, which is
// what replay logs when a request is rejected.
package matching
