package manager

import (
	"errors"
	"fmt"
)

// modelUnknownError signals an id absent from the registry.
type modelUnknownError struct{ id string }

func (e modelUnknownError) Error() string { return "model not found: " + e.id }

// ErrModelUnknown constructs the error for an id the registry does not list.
func ErrModelUnknown(id string) error { return modelUnknownError{id: id} }

// IsModelUnknown reports whether err indicates a missing model id.
func IsModelUnknown(err error) bool {
	var e modelUnknownError
	return errors.As(err, &e)
}

// backendUnsupportedError signals an entry whose backend has no factory.
type backendUnsupportedError struct {
	id      string
	backend string
}

func (e backendUnsupportedError) Error() string {
	if e.backend == "" {
		return fmt.Sprintf("model %s: no backend specified", e.id)
	}
	return fmt.Sprintf("model %s: unsupported backend %q", e.id, e.backend)
}

// ErrBackendUnsupported constructs the error for an unknown or empty backend tag.
func ErrBackendUnsupported(id, backend string) error {
	return backendUnsupportedError{id: id, backend: backend}
}

// IsBackendUnsupported reports whether err indicates an unknown backend discriminator.
func IsBackendUnsupported(err error) bool {
	var e backendUnsupportedError
	return errors.As(err, &e)
}

// runnerUnavailableError signals a runner that was built but did not become ready.
// The HTTP layer maps it to 503.
type runnerUnavailableError struct {
	id    string
	cause error
}

func (e runnerUnavailableError) Error() string {
	if e.cause == nil {
		return "runner unavailable: " + e.id
	}
	return fmt.Sprintf("runner unavailable: %s: %v", e.id, e.cause)
}

func (e runnerUnavailableError) Unwrap() error { return e.cause }

// ErrRunnerUnavailable constructs the error for a runner that failed to initialize.
func ErrRunnerUnavailable(id string, cause error) error {
	return runnerUnavailableError{id: id, cause: cause}
}

// IsRunnerUnavailable reports whether err indicates a failed init.
func IsRunnerUnavailable(err error) bool {
	var e runnerUnavailableError
	return errors.As(err, &e)
}
