package quac

import "github.com/pkg/errors"

// ParseError wraps a recoverable failure in a Hamiltonian term string or a
// boundary JSON document. The caller may retry with a corrected
// expression or variable binding; no state is committed.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return "quac: parse error: " + e.msg }

func newParseError(format string, args ...interface{}) *ParseError {
	return &ParseError{msg: errors.Errorf(format, args...).Error()}
}

// ResourceError is fatal: allocation failure, or use of the Instance
// after Finalize.
type ResourceError struct {
	msg string
}

func (e *ResourceError) Error() string { return "quac: resource error: " + e.msg }

func newResourceError(format string, args ...interface{}) *ResourceError {
	return &ResourceError{msg: errors.Errorf(format, args...).Error()}
}
