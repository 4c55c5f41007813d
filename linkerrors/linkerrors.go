// Package linkerrors defines the structured error taxonomy for the
// observability link: a stable Stage/Code pair plus the underlying cause.
package linkerrors

import "fmt"

// Stage identifies which part of the link produced the error.
type Stage string

const (
	StageHandshake Stage = "handshake"
	StageWire      Stage = "wire"
	StageBuffer    Stage = "buffer"
	StageSession   Stage = "session"
	StageFeature   Stage = "feature"
	StageServer    Stage = "server"
)

// Code is a stable, programmatic error identifier.
type Code string

const (
	CodeTimeout        Code = "timeout"
	CodeOversize       Code = "oversize"
	CodeBadToken       Code = "bad_token"
	CodeIOError        Code = "io_error"
	CodeClosed         Code = "closed"
	CodeQueueFull      Code = "queue_full"
	CodeMalformed      Code = "malformed"
	CodeUnknownFeature Code = "unknown_feature"
	CodeUnknownID      Code = "unknown_id"
	CodeReleaseRefused Code = "release_refused"
)

// Error is a structured, programmatically identifiable link error.
type Error struct {
	Stage Stage
	Code  Code
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Stage, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a structured Error for the given stage/code/cause.
func Wrap(stage Stage, code Code, err error) error {
	return &Error{Stage: stage, Code: code, Err: err}
}
