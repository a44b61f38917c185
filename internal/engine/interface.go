// Package engine provides the Inspector interface for container engine backends.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// Query is a status-inspection format understood by every engine backend.
// The values are Go templates evaluated against the engine's inspect document.
type Query string

const (
	// HealthStatusQuery yields the health probe status, or nothing when the
	// container declares no probe.
	HealthStatusQuery Query = `{{if .Config.Healthcheck}}{{print .State.Health.Status}}{{end}}`

	// ExitCodeQuery yields the exit code of the container's primary process.
	ExitCodeQuery Query = `{{print .State.ExitCode}}`
)

// Name returns a short label for the query, used in logs and metrics.
func (q Query) Name() string {
	switch q {
	case HealthStatusQuery:
		return "health"
	case ExitCodeQuery:
		return "exit_code"
	default:
		return "custom"
	}
}

// Inspector runs read-only status queries against a container.
// Implementations include the docker CLI, the Docker Engine API, the
// container hook protocol and Kubernetes.
type Inspector interface {
	// Inspect evaluates query against the container and returns the output lines.
	Inspect(ctx context.Context, containerID string, query Query) ([]string, error)
}

// Remover deletes containers during job teardown.
// Implementations report a container that no longer exists with an error
// matching errdefs.IsNotFound.
type Remover interface {
	Remove(ctx context.Context, containerID string) error
}

// Engine is a backend that can both inspect and remove containers.
type Engine interface {
	Inspector
	Remover
}

// QueryError is returned when the engine invocation itself fails.
type QueryError struct {
	ContainerID string
	Query       Query
	Err         error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("inspect %s (%s query): %v", e.ContainerID, e.Query.Name(), e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func queryError(containerID string, query Query, err error) error {
	return &QueryError{ContainerID: containerID, Query: query, Err: err}
}

// splitLines turns raw engine output into trimmed lines, dropping the
// trailing newline the engines emit. A blank output yields a single empty line.
func splitLines(out string) []string {
	out = strings.TrimRight(out, "\r\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}
