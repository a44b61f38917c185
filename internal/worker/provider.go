// Package worker contains the worker-side container orchestration for a job.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobworker/internal/container"
	"jobworker/internal/engine"
	"jobworker/internal/jobctx"
	"jobworker/internal/logger"
	"jobworker/internal/readiness"

	"github.com/containerd/errdefs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ExecutionContext is the job-wide collaborator that receives the job result
// and user-visible diagnostics.
type ExecutionContext interface {
	SetResult(r jobctx.Result)
	Errorf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// ProviderConfig holds configuration for the container provider.
type ProviderConfig struct {
	QueryTimeout        time.Duration // Per engine query bound (default: none)
	TeardownTimeout     time.Duration // Bound for the whole teardown (default: 1m)
	TeardownConcurrency int           // Parallel removals (default: 4)
}

// ContainerProvider owns the container set of a job: it runs the readiness
// pass once containers are started and tears them down afterwards.
type ContainerProvider struct {
	evaluator *readiness.Evaluator
	remover   engine.Remover
	config    ProviderConfig
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewContainerProvider creates a provider on top of an engine backend.
func NewContainerProvider(inspector engine.Inspector, remover engine.Remover, config ProviderConfig, log *slog.Logger) *ContainerProvider {
	if config.TeardownTimeout <= 0 {
		config.TeardownTimeout = time.Minute
	}

	if config.TeardownConcurrency <= 0 {
		config.TeardownConcurrency = 4
	}

	if log == nil {
		log = slog.Default()
	}

	return &ContainerProvider{
		evaluator: readiness.NewEvaluator(inspector, readiness.EvaluatorConfig{
			QueryTimeout: config.QueryTimeout,
		}, log),
		remover: remover,
		config:  config,
		logger:  log,
		tracer:  otel.Tracer("jobworker/worker"),
	}
}

// RunReadinessCheck evaluates the started containers in order and fails on the
// first one that is not ready. On any failure, cancellation included, the job
// result is set to Failed and the returned error is a *readiness.Error. Teardown is not performed here; callers run Teardown
// regardless of the outcome.
func (p *ContainerProvider) RunReadinessCheck(ctx context.Context, ec ExecutionContext, containers []container.Info) error {
	// The set is fixed for the whole pass.
	batch := make([]container.Info, len(containers))
	copy(batch, containers)

	ctx, span := p.tracer.Start(ctx, "readiness_pass",
		trace.WithAttributes(
			attribute.String("job.id", logger.JobIDFromContext(ctx)),
			attribute.Int("containers.count", len(batch)),
		),
	)
	defer span.End()

	log := logger.FromContext(ctx, p.logger)
	log.Info("running container readiness check", "containers", len(batch))

	outcomes, err := p.evaluator.EvaluateAll(ctx, batch)
	for _, out := range outcomes {
		ec.Debugf("%s: signal=%s queries=%d duration=%s", out.Container, out.Signal, out.Queries, out.Duration)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		ec.SetResult(jobctx.ResultFailed)
		ec.Errorf("%s", Diagnose(err))
		log.Warn("container readiness check failed", "error", err, "evaluated", len(outcomes))
		return err
	}

	ec.Infof("All %d containers are ready", len(batch))
	log.Info("container readiness check passed", "containers", len(batch))
	return nil
}

// Run performs a full job pass: readiness check, then step when every
// container is ready, then teardown of all started containers whatever
// happened before. Teardown errors are reported alongside the pass error.
func (p *ContainerProvider) Run(ctx context.Context, ec ExecutionContext, containers []container.Info, step func(ctx context.Context) error) (err error) {
	defer func() {
		if terr := p.Teardown(ctx, containers); terr != nil {
			ec.Errorf("Failed to clean up containers: %v", terr)
			err = errors.Join(err, terr)
		}
	}()

	if err := p.RunReadinessCheck(ctx, ec, containers); err != nil {
		return err
	}
	if step == nil {
		return nil
	}
	return step(ctx)
}

// Diagnose turns a readiness failure into the user-facing message naming the
// container and the signal that failed.
func Diagnose(err error) string {
	var rerr *readiness.Error
	if !errors.As(err, &rerr) {
		return fmt.Sprintf("Container readiness check failed: %v", err)
	}

	c := rerr.Container
	switch {
	case errors.Is(err, readiness.ErrUnhealthy):
		return fmt.Sprintf("Failed to initialize %s: health probe failed (%s)", c, rerr.Detail)
	case errors.Is(err, readiness.ErrStartupFailedNoProbe):
		return fmt.Sprintf("Failed to initialize %s: no health probe declared and %s", c, rerr.Detail)
	case errors.Is(err, readiness.ErrCancelled):
		return fmt.Sprintf("Readiness check of %s was cancelled", c)
	default:
		return fmt.Sprintf("Failed to query status of %s: %v", c, rerr.Err)
	}
}

// Teardown removes every started container. It runs to completion even when
// ctx is already cancelled, bounded by TeardownTimeout. Containers that no
// longer exist are skipped; other failures are joined into the result.
func (p *ContainerProvider) Teardown(ctx context.Context, containers []container.Info) error {
	log := logger.FromContext(ctx, p.logger)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.TeardownTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "teardown",
		trace.WithAttributes(attribute.Int("containers.count", len(containers))),
	)
	defer span.End()

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(p.config.TeardownConcurrency)

	for _, c := range containers {
		if !c.Started() {
			continue
		}
		g.Go(func() error {
			err := p.remover.Remove(ctx, c.ID)
			switch {
			case err == nil:
				log.Info("removed container", "container_id", c.ID, "image", c.Image)
			case errdefs.IsNotFound(err):
				log.Debug("container already removed", "container_id", c.ID)
			default:
				log.Warn("failed to remove container", "container_id", c.ID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("teardown: %w", err)
	}
	return nil
}
