package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/types"
	"github.com/BaSui01/swarmflow/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Mock Worker
// ---------------------------------------------------------------------------

type mockWorker struct {
	id        string
	value     any
	decision  string
	err       error
	delay     time.Duration
	failFirst int32 // fail the first N calls, then succeed
	fn        func(ctx context.Context, task *types.Task) (*types.ExecutionResult, error)
	callCount atomic.Int32
	destroyed atomic.Bool
}

func newMockWorker(id string) *mockWorker {
	return &mockWorker{id: id, value: fmt.Sprintf("result from %s", id)}
}

func (m *mockWorker) WithValue(v any) *mockWorker        { m.value = v; return m }
func (m *mockWorker) WithDecision(d string) *mockWorker  { m.decision = d; return m }
func (m *mockWorker) WithError(err error) *mockWorker    { m.err = err; return m }
func (m *mockWorker) WithDelay(d time.Duration) *mockWorker { m.delay = d; return m }
func (m *mockWorker) FailFirst(n int32) *mockWorker      { m.failFirst = n; return m }

func (m *mockWorker) WithFunc(fn func(ctx context.Context, task *types.Task) (*types.ExecutionResult, error)) *mockWorker {
	m.fn = fn
	return m
}

func (m *mockWorker) ID() string { return m.id }

func (m *mockWorker) Execute(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
	call := m.callCount.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if call <= m.failFirst {
		return nil, fmt.Errorf("transient failure %d from %s", call, m.id)
	}
	if m.fn != nil {
		return m.fn(ctx, task)
	}
	return &types.ExecutionResult{
		WorkerID: m.id,
		Success:  true,
		Value:    m.value,
		Decision: m.decision,
	}, nil
}

func (m *mockWorker) Stats() worker.Stats {
	return worker.Stats{WorkerID: m.id, Executions: int64(m.callCount.Load())}
}

func (m *mockWorker) Destroy(ctx context.Context) error {
	m.destroyed.Store(true)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		DefaultTimeout: 500 * time.Millisecond,
		DefaultRetries: 2,
		BackoffBase:    time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, workers ...*mockWorker) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(testConfig(), zap.NewNop())
	for _, w := range workers {
		require.NoError(t, o.RegisterWorker(w))
	}
	return o
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestOrchestrator_RegisterWorker(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, newMockWorker("w1"))

	w, ok := o.GetWorker("w1")
	require.True(t, ok)
	assert.Equal(t, "w1", w.ID())

	_, ok = o.GetWorker("missing")
	assert.False(t, ok)
}

func TestOrchestrator_RegisterDuplicate(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, newMockWorker("w1"))

	err := o.RegisterWorker(newMockWorker("w1"))
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkerExists, types.GetErrorCode(err))
}

func TestOrchestrator_UnregisterDestroysWorker(t *testing.T) {
	t.Parallel()
	w := newMockWorker("w1")
	o := newTestOrchestrator(t, w)

	require.NoError(t, o.UnregisterWorker(context.Background(), "w1"))
	assert.True(t, w.destroyed.Load())

	_, ok := o.GetWorker("w1")
	assert.False(t, ok)

	err := o.UnregisterWorker(context.Background(), "w1")
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkerNotFound, types.GetErrorCode(err))
}

func TestOrchestrator_GetStats(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, newMockWorker("w1"), newMockWorker("w2"))

	_, err := o.ExecuteParallel(context.Background(), []string{"w1", "w2"}, types.NewTask("t", nil), ParallelOptions{})
	require.NoError(t, err)

	stats := o.GetStats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, int64(2), stats.Dispatches)
	assert.Equal(t, int64(2), stats.Successes)
	assert.Equal(t, int64(0), stats.Failures)
	assert.Len(t, stats.WorkerStats, 2)
}

func TestOrchestrator_DestroyAll(t *testing.T) {
	t.Parallel()
	w1 := newMockWorker("w1")
	w2 := newMockWorker("w2")
	o := newTestOrchestrator(t, w1, w2)

	require.NoError(t, o.Destroy(context.Background()))
	assert.True(t, w1.destroyed.Load())
	assert.True(t, w2.destroyed.Load())
	assert.Empty(t, o.WorkerIDs())
}

// ---------------------------------------------------------------------------
// Dispatch semantics
// ---------------------------------------------------------------------------

func TestDispatch_UnknownWorkerFailsImmediately(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	start := time.Now()
	result := o.dispatchWithRetry(context.Background(), "ghost", types.NewTask("t", nil), time.Second, 3)
	assert.False(t, result.Success)
	assert.Equal(t, types.ErrWorkerNotFound, types.GetErrorCode(result.Err))
	// No retries happen for an unregistered id.
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDispatch_RetriesTransientFailure(t *testing.T) {
	t.Parallel()
	w := newMockWorker("w1").FailFirst(1)
	o := newTestOrchestrator(t, w)

	result := o.dispatchWithRetry(context.Background(), "w1", types.NewTask("t", nil), time.Second, 2)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), w.callCount.Load())
}

func TestDispatch_ExhaustsRetries(t *testing.T) {
	t.Parallel()
	w := newMockWorker("w1").WithError(errors.New("always fails"))
	o := newTestOrchestrator(t, w)

	result := o.dispatchWithRetry(context.Background(), "w1", types.NewTask("t", nil), time.Second, 3)
	assert.False(t, result.Success)
	assert.Equal(t, int32(3), w.callCount.Load())
	assert.Contains(t, result.Err.Error(), "always fails")
}

func TestDispatch_TimeoutCountsAsFailedAttempt(t *testing.T) {
	t.Parallel()
	w := newMockWorker("w1").WithDelay(200 * time.Millisecond)
	o := newTestOrchestrator(t, w)

	result := o.dispatchWithRetry(context.Background(), "w1", types.NewTask("t", nil), 20*time.Millisecond, 1)
	assert.False(t, result.Success)
	assert.Equal(t, types.ErrDispatchTimeout, types.GetErrorCode(result.Err))
}

func TestDispatch_LateResultIsDiscarded(t *testing.T) {
	t.Parallel()
	// The worker eventually finishes, but the dispatch has already been
	// abandoned: its result must not flip the outcome.
	w := newMockWorker("w1").WithDelay(80 * time.Millisecond)
	o := newTestOrchestrator(t, w)

	result := o.dispatchWithRetry(context.Background(), "w1", types.NewTask("t", nil), 10*time.Millisecond, 1)
	assert.False(t, result.Success)

	time.Sleep(120 * time.Millisecond)
	assert.False(t, result.Success)
	assert.GreaterOrEqual(t, w.callCount.Load(), int32(1))
}
