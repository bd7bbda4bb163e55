package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers missing sessions, sessions owned by another patient,
	// and symptom ids absent from the catalog.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when mutating a completed session.
	ErrInvalidState = errors.New("session is completed")
	// ErrConflict is returned when a catalog entry name is already taken.
	ErrConflict = errors.New("already exists")
	// ErrNoChange is returned by a Mutate callback that left the session as
	// it was.
	ErrNoChange = errors.New("no change")
)

// StorageFault wraps a persistence failure. It is surfaced unmodified so the
// caller can see the driver error.
type StorageFault struct {
	Op  string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error {
	return e.Err
}

func storageFault(op string, err error) error {
	if err == nil {
		return nil
	}
	var sf *StorageFault
	var ie *InputError
	if errors.As(err, &sf) || errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrConflict) {
		return err
	}
	return &StorageFault{Op: op, Err: err}
}

// InputError reports a request the service refuses to act on.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func invalidf(format string, args ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}
