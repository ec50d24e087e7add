package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/swarmflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExecuteWithConsensus_Majority(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("yes"),
		newMockWorker("w2").WithDecision("yes"),
		newMockWorker("w3").WithDecision("no"),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2", "w3"}, types.NewTask("vote", nil), ConsensusOptions{
		Strategy: StrategyMajority,
	})
	require.NoError(t, err)
	assert.True(t, result.Reached)
	assert.Equal(t, "yes", result.Winner)
	assert.InDelta(t, 2.0/3.0, result.Confidence, 1e-9)
	assert.Equal(t, 2.0, result.Votes["yes"])
	assert.Equal(t, 1.0, result.Votes["no"])
	assert.Equal(t, 3.0, result.TotalWeight)
}

func TestExecuteWithConsensus_MajorityNotReached(t *testing.T) {
	t.Parallel()
	// 50% 不算多数：多数决要求严格大于阈值
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("yes"),
		newMockWorker("w2").WithDecision("no"),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2"}, types.NewTask("vote", nil), ConsensusOptions{
		Strategy: StrategyMajority,
	})
	require.NoError(t, err)
	assert.False(t, result.Reached)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
}

func TestExecuteWithConsensus_Unanimous(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("ship"),
		newMockWorker("w2").WithDecision("ship"),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2"}, types.NewTask("vote", nil), ConsensusOptions{
		Strategy: StrategyUnanimous,
	})
	require.NoError(t, err)
	assert.True(t, result.Reached)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestExecuteWithConsensus_UnanimousBrokenByDissent(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("ship"),
		newMockWorker("w2").WithDecision("hold"),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2"}, types.NewTask("vote", nil), ConsensusOptions{
		Strategy: StrategyUnanimous,
	})
	require.NoError(t, err)
	assert.False(t, result.Reached)
}

func TestExecuteWithConsensus_Weighted(t *testing.T) {
	t.Parallel()
	// 权重压倒人数：w1 一票 3.0 胜过两票 1.0
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("yes"),
		newMockWorker("w2").WithDecision("no"),
		newMockWorker("w3").WithDecision("no"),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2", "w3"}, types.NewTask("vote", nil), ConsensusOptions{
		Strategy: StrategyWeighted,
		Weights:  map[string]float64{"w1": 3.0},
	})
	require.NoError(t, err)
	assert.True(t, result.Reached)
	assert.Equal(t, "yes", result.Winner)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
}

func TestExecuteWithConsensus_TieBreakByEnumerationOrder(t *testing.T) {
	t.Parallel()
	// 平局时最先出现的键保持胜位，不随机
	o := newTestOrchestrator(t,
		newMockWorker("a").WithDecision("x"),
		newMockWorker("b").WithDecision("y"),
		newMockWorker("c").WithDecision("y"),
		newMockWorker("d").WithDecision("x"),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"a", "b", "c", "d"}, types.NewTask("vote", nil), ConsensusOptions{})
	require.NoError(t, err)
	assert.Equal(t, "x", result.Winner)
	assert.Equal(t, 0.5, result.Confidence)
	assert.False(t, result.Reached)
}

func TestExecuteWithConsensus_FailuresExcludedFromTally(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithDecision("yes"),
		newMockWorker("w2").WithError(errors.New("down")),
	)

	result, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2"}, types.NewTask("vote", nil), ConsensusOptions{Timeout: 0})
	require.NoError(t, err)
	assert.True(t, result.Reached)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Len(t, result.Failures, 1)
}

func TestExecuteWithConsensus_NoSuccessIsError(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t,
		newMockWorker("w1").WithError(errors.New("down")),
		newMockWorker("w2").WithError(errors.New("down")),
	)

	_, err := o.ExecuteWithConsensus(context.Background(), []string{"w1", "w2"}, types.NewTask("vote", nil), ConsensusOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrNoSuccess, types.GetErrorCode(err))
}

func TestTallyVotes_ConfidenceProperty(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "successes")
		keys := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c"}), n, n).Draw(t, "keys")

		successes := make([]*types.ExecutionResult, n)
		for i, k := range keys {
			successes[i] = &types.ExecutionResult{WorkerID: "w", Success: true, Decision: k}
		}

		winner, winning, total, votes := tallyVotes(successes, nil)
		confidence := winning / total

		if confidence <= 0 || confidence > 1 {
			t.Fatalf("confidence %v out of (0, 1]", confidence)
		}
		allSame := true
		for _, k := range keys {
			if k != keys[0] {
				allSame = false
			}
		}
		if allSame != (confidence == 1.0) {
			t.Fatalf("confidence = %v with keys %v", confidence, keys)
		}
		if votes[winner] != winning {
			t.Fatalf("winner %q has %v votes, winning = %v", winner, votes[winner], winning)
		}
	})
}
