package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/swarmflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteEnsemble_BestOfDefaultsToFirstSuccess(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithError(errors.New("down")),
		newMockWorker("w2").WithValue("second"),
		newMockWorker("w3").WithValue("third"),
	)

	result, err := o.ExecuteEnsemble(context.Background(), []string{"w1", "w2", "w3"}, types.NewTask("t", nil), EnsembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, StrategyBestOf, result.Strategy)
	assert.Equal(t, "second", result.Output)
	assert.Len(t, result.Failures, 1)
}

func TestExecuteEnsemble_CustomSelector(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithValue("short"),
		newMockWorker("w2").WithValue("a much longer answer"),
	)

	result, err := o.ExecuteEnsemble(context.Background(), []string{"w1", "w2"}, types.NewTask("t", nil), EnsembleOptions{
		Strategy: StrategyBestOf,
		Selector: func(successes []*types.ExecutionResult) *types.ExecutionResult {
			best := successes[0]
			for _, r := range successes[1:] {
				if len(r.Value.(string)) > len(best.Value.(string)) {
					best = r
				}
			}
			return best
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "a much longer answer", result.Output)
}

func TestExecuteEnsemble_MergePreservesOrder(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithValue("a"),
		newMockWorker("w2").WithValue("b"),
	)

	result, err := o.ExecuteEnsemble(context.Background(), []string{"w1", "w2"}, types.NewTask("t", nil), EnsembleOptions{
		Strategy: StrategyMerge,
	})
	require.NoError(t, err)

	merged, ok := result.Output.([]*types.ExecutionResult)
	require.True(t, ok)
	require.Len(t, merged, 2)
	assert.Equal(t, "w1", merged[0].WorkerID)
	assert.Equal(t, "w2", merged[1].WorkerID)
}

func TestExecuteEnsemble_VoteDelegatesToMajority(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("blue"),
		newMockWorker("w2").WithDecision("blue"),
		newMockWorker("w3").WithDecision("red"),
	)

	result, err := o.ExecuteEnsemble(context.Background(), []string{"w1", "w2", "w3"}, types.NewTask("t", nil), EnsembleOptions{
		Strategy: StrategyVote,
	})
	require.NoError(t, err)

	vote, ok := result.Output.(*ConsensusResult)
	require.True(t, ok)
	assert.True(t, vote.Reached)
	assert.Equal(t, "blue", vote.Winner)
	assert.InDelta(t, 2.0/3.0, vote.Confidence, 1e-9)
}

func TestExecuteEnsemble_NoSuccessIsError(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithError(errors.New("down")),
	)

	_, err := o.ExecuteEnsemble(context.Background(), []string{"w1"}, types.NewTask("t", nil), EnsembleOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrNoSuccess, types.GetErrorCode(err))
}
