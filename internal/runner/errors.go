package runner

import (
	"errors"
	"fmt"
)

// notReadyError signals that a runner was used before Init succeeded.
type notReadyError struct{ id string }

func (e notReadyError) Error() string { return "runner not ready: " + e.id }

// ErrNotReady constructs the error returned when a runner has not been initialized.
func ErrNotReady(id string) error { return notReadyError{id: id} }

// IsNotReady reports whether err indicates a runner that must be (re)initialized.
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// notSupportedError signals a capability the backend fundamentally lacks.
type notSupportedError struct {
	id   string
	what string
}

func (e notSupportedError) Error() string {
	return fmt.Sprintf("runner %s: %s not supported", e.id, e.what)
}

// ErrNotSupported constructs the error returned for missing capabilities.
func ErrNotSupported(id, what string) error { return notSupportedError{id: id, what: what} }

// IsNotSupported reports whether err indicates a capability this backend cannot provide.
func IsNotSupported(err error) bool {
	var e notSupportedError
	return errors.As(err, &e)
}

// ErrStreamInterrupted prefixes the meta error annotation of partial results.
var ErrStreamInterrupted = errors.New("stream interrupted")

func interrupted(cause error) error {
	return fmt.Errorf("%w: %v", ErrStreamInterrupted, cause)
}
