package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failed")
	ErrTransport    = errors.New("transport failed")
	ErrNotMember    = errors.New("participant is not a member of channel")
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

func Validation(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func Transport(connID string, err error) error {
	return fmt.Errorf("%w: conn %s: %w", ErrTransport, connID, err)
}

// SignalingError reports a failed media-server call. Code and Reason are set
// when the server answered with an error envelope.
type SignalingError struct {
	Op     string
	Code   int
	Reason string
	Err    error
}

func (e *SignalingError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("signaling %s: %v", e.Op, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("signaling %s: %d %s", e.Op, e.Code, e.Reason)
	default:
		return fmt.Sprintf("signaling %s: %s", e.Op, e.Reason)
	}
}

func (e *SignalingError) Unwrap() error { return e.Err }
