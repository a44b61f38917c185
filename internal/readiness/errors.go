package readiness

import (
	"errors"
	"fmt"

	"jobworker/internal/container"
)

var (
	// ErrEngineQuery indicates the engine invocation itself failed.
	ErrEngineQuery = errors.New("readiness: engine query failed")

	// ErrUnhealthy indicates the health probe reported a non-healthy status.
	ErrUnhealthy = errors.New("readiness: container reported unhealthy status")

	// ErrStartupFailedNoProbe indicates a container without a probe whose exit
	// status was non-zero or unparseable.
	ErrStartupFailedNoProbe = errors.New("readiness: container exited without a health probe and a non-zero/invalid exit status")

	// ErrCancelled indicates the job was cancelled while evaluation was in flight.
	ErrCancelled = errors.New("readiness: cancelled")
)

// Error is the failure raised for the first container that is not ready.
// Kind is one of the sentinel errors above and can be matched with errors.Is.
type Error struct {
	Kind      error
	Container container.Info
	// Detail names the offending signal, e.g. `health probe reported "starting"`.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Container, e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// outcomeLabel names the outcome of an evaluation for metrics.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrUnhealthy):
		return "unhealthy"
	case errors.Is(err, ErrStartupFailedNoProbe):
		return "startup_failed"
	default:
		return "engine_error"
	}
}
