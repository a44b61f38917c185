// Package jobctx provides the per-job execution context: terminal result,
// diagnostics and the job-scoped logger.
package jobctx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"jobworker/internal/logger"

	"github.com/google/uuid"
)

// Result is the terminal state of a job.
type Result int

const (
	ResultSucceeded Result = iota
	ResultFailed
	ResultCanceled
)

// String returns the string representation of the result.
func (r Result) String() string {
	switch r {
	case ResultSucceeded:
		return "succeeded"
	case ResultFailed:
		return "failed"
	case ResultCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Context carries the state of one job execution.
// It is safe for concurrent use.
type Context struct {
	id     uuid.UUID
	logger *slog.Logger

	mu          sync.Mutex
	result      *Result
	diagnostics []string
}

// New creates an execution context with a fresh job ID.
func New(base *slog.Logger) *Context {
	return NewWithID(uuid.New(), base)
}

// NewWithID creates an execution context for an existing job ID.
func NewWithID(id uuid.UUID, base *slog.Logger) *Context {
	if base == nil {
		base = slog.Default()
	}
	return &Context{
		id:     id,
		logger: base.With("job_id", id.String()),
	}
}

// ID returns the job ID.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Attach returns ctx carrying the job ID for downstream loggers.
func (c *Context) Attach(ctx context.Context) context.Context {
	return logger.WithJobID(ctx, c.id.String())
}

// Logger returns the job-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Result returns the job result and whether one has been set.
func (c *Context) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return ResultSucceeded, false
	}
	return *c.result, true
}

// SetResult records the terminal job result. A later call overwrites it.
func (c *Context) SetResult(r Result) {
	c.mu.Lock()
	c.result = &r
	c.mu.Unlock()

	c.logger.Info("job result set", "result", r.String())
}

// Errorf writes an error diagnostic visible to the user.
func (c *Context) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.record(msg)
	c.logger.Error(msg)
}

// Infof writes an informational diagnostic visible to the user.
func (c *Context) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.record(msg)
	c.logger.Info(msg)
}

// Debugf writes a debug line to the log only.
func (c *Context) Debugf(format string, args ...any) {
	c.logger.Debug(fmt.Sprintf(format, args...))
}

// Diagnostics returns the user-visible messages written so far.
func (c *Context) Diagnostics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

func (c *Context) record(msg string) {
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, msg)
	c.mu.Unlock()
}
