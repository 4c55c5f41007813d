package linkerrors

import (
	"errors"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(StageSession, CodeIOError, cause)

	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if le.Stage != StageSession || le.Code != CodeIOError {
		t.Fatalf("unexpected stage/code: %+v", le)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose cause")
	}
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := Wrap(StageHandshake, CodeTimeout, nil)
	if got, want := err.Error(), "handshake (timeout)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *Error
	if got, want := e.Error(), "<nil>"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
