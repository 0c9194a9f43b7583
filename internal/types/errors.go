package types

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ParameterError ErrorKind = "ParameterError"
	ModelLoadError ErrorKind = "ModelLoadError"
	ExecutionError ErrorKind = "ExecutionError"
	IOError        ErrorKind = "IOError"
)

// Error attaches an ErrorKind to an underlying error. The message is the
// underlying message so envelopes read naturally.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err. An error that already carries a kind keeps it.
func Wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	return &Error{Kind: kind, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) error {
	return Wrap(kind, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, defaulting to ExecutionError.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ExecutionError
}
