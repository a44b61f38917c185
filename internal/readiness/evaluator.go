package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobworker/internal/container"
	"jobworker/internal/engine"
	"jobworker/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome records what a single evaluation observed.
type Outcome struct {
	Container container.Info
	Signal    Signal
	// ExitCode is set only when the exit-code fallback was consulted and parsed.
	ExitCode *int
	// Queries is the number of engine queries issued: 1 for a conclusive
	// probe, 2 when the exit-code fallback ran.
	Queries  int
	Duration time.Duration
}

// EvaluatorConfig holds configuration for the readiness evaluator.
type EvaluatorConfig struct {
	// QueryTimeout bounds each engine query (default: no bound beyond ctx)
	QueryTimeout time.Duration
}

// Evaluator applies the readiness policy to containers: health probe first,
// exit code only when no probe is declared.
type Evaluator struct {
	inspector engine.Inspector
	config    EvaluatorConfig
	logger    *slog.Logger
	metrics   *metrics
	tracer    trace.Tracer
}

// NewEvaluator creates a new evaluator backed by inspector.
func NewEvaluator(inspector engine.Inspector, config EvaluatorConfig, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		inspector: inspector,
		config:    config,
		logger:    log,
		metrics:   newMetrics(otel.Meter("jobworker/readiness")),
		tracer:    otel.Tracer("jobworker/readiness"),
	}
}

// Evaluate determines whether a single container is ready.
// A nil error means Ready; otherwise the error is a *Error.
// A container that was never started fails with ErrEngineQuery and no query issued.
func (e *Evaluator) Evaluate(ctx context.Context, c container.Info) (Outcome, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "evaluate_container",
		trace.WithAttributes(
			attribute.String("container.id", c.ID),
			attribute.String("container.image", c.Image),
			attribute.String("container.role", c.Role.String()),
		),
	)
	defer span.End()

	out := Outcome{Container: c}
	err := e.evaluate(ctx, &out)
	out.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("readiness.queries", out.Queries),
		attribute.String("readiness.signal", out.Signal.String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics.recordOutcome(ctx, outcomeLabel(err), out.Duration)

	return out, err
}

// EvaluateAll evaluates containers in order and stops at the first failure.
// Containers after the failing one are not queried. The returned outcomes
// cover every container evaluated, including the failing one.
func (e *Evaluator) EvaluateAll(ctx context.Context, containers []container.Info) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(containers))
	for _, c := range containers {
		out, err := e.Evaluate(ctx, c)
		outcomes = append(outcomes, out)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (e *Evaluator) evaluate(ctx context.Context, out *Outcome) error {
	c := out.Container
	log := logger.FromContext(ctx, e.logger)

	if !c.Started() {
		return &Error{Kind: ErrEngineQuery, Container: c, Err: errors.New("container has not been started")}
	}

	lines, err := e.query(ctx, out, engine.HealthStatusQuery)
	if err != nil {
		return err
	}

	out.Signal = ParseHealth(lines)
	log.Debug("health probe inspected", "container_id", c.ID, "signal", out.Signal.String())

	switch out.Signal {
	case SignalHealthy:
		return nil
	case SignalUnhealthy:
		return &Error{
			Kind:      ErrUnhealthy,
			Container: c,
			Detail:    fmt.Sprintf("health probe reported %q", joinOutput(lines)),
		}
	}

	// No probe declared: the exit code decides.
	lines, err = e.query(ctx, out, engine.ExitCodeQuery)
	if err != nil {
		return err
	}

	code, ok := ParseExitCode(lines)
	if !ok {
		return &Error{
			Kind:      ErrStartupFailedNoProbe,
			Container: c,
			Detail:    fmt.Sprintf("exit code %q is not a number", joinOutput(lines)),
		}
	}
	out.ExitCode = &code
	log.Debug("exit code inspected", "container_id", c.ID, "exit_code", code)

	if code != 0 {
		return &Error{
			Kind:      ErrStartupFailedNoProbe,
			Container: c,
			Detail:    fmt.Sprintf("exit code %d", code),
		}
	}
	return nil
}

// query issues exactly one engine query and classifies its failure.
func (e *Evaluator) query(ctx context.Context, out *Outcome, q engine.Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: ErrCancelled, Container: out.Container, Err: err}
	}

	queryCtx := ctx
	if e.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
	}

	out.Queries++
	e.metrics.recordQuery(ctx, q)

	lines, err := e.inspector.Inspect(queryCtx, out.Container.ID, q)
	if err != nil {
		// Only the job's own cancellation counts as cancelled; a per-query
		// timeout is an engine failure.
		if ctx.Err() != nil {
			return nil, &Error{Kind: ErrCancelled, Container: out.Container, Err: err}
		}
		return nil, &Error{
			Kind:      ErrEngineQuery,
			Container: out.Container,
			Detail:    q.Name() + " query",
			Err:       err,
		}
	}
	return lines, nil
}
