package readiness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobworker/internal/container"
	"jobworker/internal/engine"

	"gotest.tools/assert"
)

// MockInspector implements engine.Inspector for testing.
type MockInspector struct {
	mu sync.Mutex

	// Responses per query; a missing query returns an empty slice.
	Responses map[engine.Query][]string

	// InspectFunc overrides Responses when set.
	InspectFunc func(ctx context.Context, containerID string, query engine.Query) ([]string, error)

	Calls []InspectCall
}

type InspectCall struct {
	ContainerID string
	Query       engine.Query
}

func (m *MockInspector) Inspect(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, InspectCall{ContainerID: containerID, Query: query})
	m.mu.Unlock()

	if m.InspectFunc != nil {
		return m.InspectFunc(ctx, containerID, query)
	}
	return m.Responses[query], nil
}

func (m *MockInspector) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func probeOnly(status string) *MockInspector {
	return &MockInspector{Responses: map[engine.Query][]string{
		engine.HealthStatusQuery: {status},
	}}
}

func noProbe(exitCode string) *MockInspector {
	return &MockInspector{Responses: map[engine.Query][]string{
		engine.HealthStatusQuery: {""},
		engine.ExitCodeQuery:     {exitCode},
	}}
}

var serviceContainer = container.Info{ID: "svc-1", Image: "ubuntu:16.04", Role: container.RoleService}

// Scenario A
func TestEvaluate_HealthyProbe_ReadyWithOneQuery(t *testing.T) {
	inspector := probeOnly("healthy")
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	out, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.NilError(t, err)
	assert.Equal(t, out.Signal, SignalHealthy)
	assert.Equal(t, out.Queries, 1)
	assert.Equal(t, inspector.CallCount(), 1)
	assert.Equal(t, inspector.Calls[0].Query, engine.HealthStatusQuery)
	assert.Equal(t, inspector.Calls[0].ContainerID, "svc-1")
	assert.Assert(t, out.ExitCode == nil)
}

// Scenario B
func TestEvaluate_UnhealthyProbe_FailsWithOneQuery(t *testing.T) {
	inspector := probeOnly("unhealthy")
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	out, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.Assert(t, errors.Is(err, ErrUnhealthy), "got %v", err)
	assert.Equal(t, out.Signal, SignalUnhealthy)
	assert.Equal(t, inspector.CallCount(), 1)

	var rerr *Error
	assert.Assert(t, errors.As(err, &rerr))
	assert.Equal(t, rerr.Container.ID, "svc-1")
	assert.ErrorContains(t, err, `health probe reported "unhealthy"`)
}

func TestEvaluate_NonHealthyProbeValues_AllUnhealthy(t *testing.T) {
	for _, status := range []string{"unhealthy", "starting", "garbage", "HEALTHY"} {
		t.Run(status, func(t *testing.T) {
			inspector := probeOnly(status)
			ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

			_, err := ev.Evaluate(context.Background(), serviceContainer)

			assert.Assert(t, errors.Is(err, ErrUnhealthy), "got %v", err)
			assert.Equal(t, inspector.CallCount(), 1)
		})
	}
}

// Scenario C
func TestEvaluate_NoProbeExitZero_ReadyWithTwoQueries(t *testing.T) {
	inspector := noProbe("0")
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	out, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.NilError(t, err)
	assert.Equal(t, out.Signal, SignalNoProbe)
	assert.Equal(t, out.Queries, 2)
	assert.Equal(t, inspector.CallCount(), 2)
	assert.Equal(t, inspector.Calls[0].Query, engine.HealthStatusQuery)
	assert.Equal(t, inspector.Calls[1].Query, engine.ExitCodeQuery)
	assert.Assert(t, out.ExitCode != nil)
	assert.Equal(t, *out.ExitCode, 0)
}

// Scenario D
func TestEvaluate_NoProbeExitNonZero_FailsWithTwoQueries(t *testing.T) {
	inspector := noProbe("127")
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	out, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.Assert(t, errors.Is(err, ErrStartupFailedNoProbe), "got %v", err)
	assert.Equal(t, inspector.CallCount(), 2)
	assert.Equal(t, *out.ExitCode, 127)
	assert.ErrorContains(t, err, "exit code 127")
}

func TestEvaluate_NoProbeInvalidExit_FailsWithTwoQueries(t *testing.T) {
	for _, exit := range []string{"", "exited", "1.5"} {
		t.Run(exit, func(t *testing.T) {
			inspector := noProbe(exit)
			ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

			out, err := ev.Evaluate(context.Background(), serviceContainer)

			assert.Assert(t, errors.Is(err, ErrStartupFailedNoProbe), "got %v", err)
			assert.Equal(t, inspector.CallCount(), 2)
			assert.Assert(t, out.ExitCode == nil)
		})
	}
}

func TestEvaluate_NoProbeEmptyOutput_FallsBack(t *testing.T) {
	// An inspector returning no lines at all counts as "no probe".
	inspector := &MockInspector{Responses: map[engine.Query][]string{
		engine.ExitCodeQuery: {"0"},
	}}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	_, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.NilError(t, err)
	assert.Equal(t, inspector.CallCount(), 2)
}

func TestEvaluate_Idempotent(t *testing.T) {
	cases := map[string]*MockInspector{
		"healthy":   probeOnly("healthy"),
		"unhealthy": probeOnly("unhealthy"),
		"exit 0":    noProbe("0"),
		"exit 127":  noProbe("127"),
	}

	for name, inspector := range cases {
		t.Run(name, func(t *testing.T) {
			ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

			first, firstErr := ev.Evaluate(context.Background(), serviceContainer)
			for i := 0; i < 3; i++ {
				out, err := ev.Evaluate(context.Background(), serviceContainer)
				assert.Equal(t, out.Queries, first.Queries)
				assert.Equal(t, out.Signal, first.Signal)
				assert.Equal(t, outcomeLabel(err), outcomeLabel(firstErr))
			}
			assert.Equal(t, inspector.CallCount(), 4*first.Queries)
		})
	}
}

func TestEvaluate_EngineErrorOnProbe(t *testing.T) {
	boom := errors.New("docker: exit status 1")
	inspector := &MockInspector{
		InspectFunc: func(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
			return nil, &engine.QueryError{ContainerID: containerID, Query: query, Err: boom}
		},
	}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	_, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.Assert(t, errors.Is(err, ErrEngineQuery), "got %v", err)
	assert.Assert(t, errors.Is(err, boom))
	var qe *engine.QueryError
	assert.Assert(t, errors.As(err, &qe))
	assert.Equal(t, inspector.CallCount(), 1)
}

func TestEvaluate_EngineErrorOnExitCode(t *testing.T) {
	inspector := &MockInspector{
		InspectFunc: func(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
			if query == engine.HealthStatusQuery {
				return []string{""}, nil
			}
			return nil, errors.New("engine gone")
		},
	}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	_, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.Assert(t, errors.Is(err, ErrEngineQuery), "got %v", err)
	assert.ErrorContains(t, err, "exit_code query")
	assert.Equal(t, inspector.CallCount(), 2)
}

func TestEvaluate_NotStarted(t *testing.T) {
	inspector := probeOnly("healthy")
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	_, err := ev.Evaluate(context.Background(), container.Info{Image: "redis:7"})

	assert.Assert(t, errors.Is(err, ErrEngineQuery), "got %v", err)
	assert.Equal(t, inspector.CallCount(), 0)
}

func TestEvaluate_CancelledBeforeQuery(t *testing.T) {
	inspector := probeOnly("healthy")
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Evaluate(ctx, serviceContainer)

	assert.Assert(t, errors.Is(err, ErrCancelled), "got %v", err)
	assert.Assert(t, errors.Is(err, context.Canceled))
	assert.Equal(t, inspector.CallCount(), 0)
}

func TestEvaluate_CancelledDuringQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inspector := &MockInspector{
		InspectFunc: func(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
			cancel()
			<-ctx.Done()
			return nil, &engine.QueryError{ContainerID: containerID, Query: query, Err: ctx.Err()}
		},
	}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	_, err := ev.Evaluate(ctx, serviceContainer)

	assert.Assert(t, errors.Is(err, ErrCancelled), "got %v", err)
	assert.Assert(t, !errors.Is(err, ErrEngineQuery))
	assert.Equal(t, inspector.CallCount(), 1)
}

func TestEvaluate_QueryTimeoutIsEngineError(t *testing.T) {
	inspector := &MockInspector{
		InspectFunc: func(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	ev := NewEvaluator(inspector, EvaluatorConfig{QueryTimeout: 10 * time.Millisecond}, nil)

	_, err := ev.Evaluate(context.Background(), serviceContainer)

	assert.Assert(t, errors.Is(err, ErrEngineQuery), "got %v", err)
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, inspector.CallCount(), 1)
}

func TestEvaluateAll_StopsAtFirstFailure(t *testing.T) {
	inspector := &MockInspector{
		InspectFunc: func(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
			if containerID == "bad" {
				return []string{"unhealthy"}, nil
			}
			return []string{"healthy"}, nil
		},
	}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	containers := []container.Info{
		{ID: "job", Image: "node:20", Role: container.RoleJob},
		{ID: "bad", Image: "redis:7", Role: container.RoleService},
		{ID: "never", Image: "postgres:16", Role: container.RoleService},
	}

	outcomes, err := ev.EvaluateAll(context.Background(), containers)

	assert.Assert(t, errors.Is(err, ErrUnhealthy), "got %v", err)
	assert.Equal(t, len(outcomes), 2)
	assert.Equal(t, inspector.CallCount(), 2)
	for _, call := range inspector.Calls {
		assert.Assert(t, call.ContainerID != "never", "container after the failure was queried")
	}
}

func TestEvaluateAll_AllReady(t *testing.T) {
	inspector := &MockInspector{
		InspectFunc: func(ctx context.Context, containerID string, query engine.Query) ([]string, error) {
			if containerID == "noprobe" {
				if query == engine.HealthStatusQuery {
					return []string{""}, nil
				}
				return []string{"0"}, nil
			}
			return []string{"healthy"}, nil
		},
	}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	containers := []container.Info{
		{ID: "job", Image: "node:20", Role: container.RoleJob},
		{ID: "noprobe", Image: "ubuntu:16.04", Role: container.RoleService},
		{ID: "db", Image: "postgres:16", Role: container.RoleService},
	}

	outcomes, err := ev.EvaluateAll(context.Background(), containers)

	assert.NilError(t, err)
	assert.Equal(t, len(outcomes), 3)
	assert.Equal(t, inspector.CallCount(), 4)

	// Evaluated in the order supplied.
	var order []string
	for _, call := range inspector.Calls {
		if len(order) == 0 || order[len(order)-1] != call.ContainerID {
			order = append(order, call.ContainerID)
		}
	}
	assert.DeepEqual(t, order, []string{"job", "noprobe", "db"})
}

func TestEvaluateAll_Empty(t *testing.T) {
	inspector := &MockInspector{}
	ev := NewEvaluator(inspector, EvaluatorConfig{}, nil)

	outcomes, err := ev.EvaluateAll(context.Background(), nil)

	assert.NilError(t, err)
	assert.Equal(t, len(outcomes), 0)
	assert.Equal(t, inspector.CallCount(), 0)
}
