// Package errors defines the error taxonomy shared by the detection, parsing
// and plugin layers.
//
// Callers match on the sentinel values with errors.Is and extract details
// with errors.As:
//
//	var perr *apperrors.PluginError
//	if errors.As(err, &perr) && perr.Kind == apperrors.KindTimeout { ... }
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four error classes.
var (
	// ErrValidation indicates the input itself has the wrong shape.
	ErrValidation = errors.New("invalid input")
	// ErrFormat indicates no parser can handle the content.
	ErrFormat = errors.New("unsupported format")
	// ErrParse indicates a parser failed while building a tree.
	ErrParse = errors.New("parse failed")
	// ErrPlugin indicates a plugin registration or sandbox policy violation.
	ErrPlugin = errors.New("plugin error")

	// ErrPluginTimeout is matched by PluginErrors of KindTimeout.
	ErrPluginTimeout = errors.New("plugin timed out")
	// ErrNodeCount is matched by PluginErrors of KindNodeCount.
	ErrNodeCount = errors.New("plugin exceeded node count")
	// ErrPluginNotFound is matched by PluginErrors of KindNotFound.
	ErrPluginNotFound = errors.New("plugin not found")
)

// ValidationError is raised before any parse attempt when the content or
// its hints are structurally unusable.
type ValidationError struct {
	Field   string // Input field that failed validation (e.g., "content")
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FormatError reports that no registered parser or plugin accepted the content.
type FormatError struct {
	Format string // Requested or detected format, may be empty
	Reason string
}

func (e *FormatError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("no parser for format %q: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("no parser for content: %s", e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrFormat
}

// ParseError is a failure inside a specific parser. Built-in parsers turn it
// into an error node; it only propagates in strict mode.
type ParseError struct {
	Format  string
	Parser  string
	Message string
	Line    int // 1-indexed, 0 if unknown
	Err     error
}

func (e *ParseError) Error() string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Parser != "" {
		return fmt.Sprintf("%s parser failed on %s%s: %s", e.Parser, e.Format, loc, e.Message)
	}
	return fmt.Sprintf("failed to parse %s%s: %s", e.Format, loc, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrParse
}

// Is lets errors.Is(err, ErrParse) succeed even when an underlying error is wrapped.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// PluginKind classifies a PluginError.
type PluginKind string

const (
	KindInvalidMetadata PluginKind = "invalid-metadata"
	KindInvalidParser   PluginKind = "invalid-parser"
	KindLimitExceeded   PluginKind = "limit-exceeded"
	KindDuplicate       PluginKind = "duplicate"
	KindNotFound        PluginKind = "not-found"
	KindTimeout         PluginKind = "timeout"
	KindNodeCount       PluginKind = "node-count"
	KindInvalidResult   PluginKind = "invalid-result"
	KindPanic           PluginKind = "panic"
	KindExecution       PluginKind = "execution"
)

// PluginError is a registration or sandbox-policy violation. It always
// propagates: no partial tree from a violating plugin is trusted.
type PluginError struct {
	Plugin  string // Format id the plugin is registered under
	Kind    PluginKind
	Message string
	Err     error
}

func (e *PluginError) Error() string {
	msg := fmt.Sprintf("plugin %s: %s: %s", e.Plugin, e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Is matches ErrPlugin for every kind, plus the kind-specific sentinels.
func (e *PluginError) Is(target error) bool {
	switch target {
	case ErrPlugin:
		return true
	case ErrPluginTimeout:
		return e.Kind == KindTimeout
	case ErrNodeCount:
		return e.Kind == KindNodeCount
	case ErrPluginNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// NewValidation creates a ValidationError.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewFormat creates a FormatError.
func NewFormat(format, reason string) *FormatError {
	return &FormatError{Format: format, Reason: reason}
}

// NewParse creates a ParseError wrapping err.
func NewParse(format, parser string, err error) *ParseError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ParseError{Format: format, Parser: parser, Message: msg, Err: err}
}

// NewPlugin creates a PluginError.
func NewPlugin(plugin string, kind PluginKind, message string) *PluginError {
	return &PluginError{Plugin: plugin, Kind: kind, Message: message}
}

// WrapPlugin creates a PluginError around an underlying cause.
func WrapPlugin(plugin string, kind PluginKind, message string, err error) *PluginError {
	return &PluginError{Plugin: plugin, Kind: kind, Message: message, Err: err}
}
