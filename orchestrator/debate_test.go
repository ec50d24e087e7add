package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BaSui01/swarmflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// debateWorker 按任务类型响应：critique 返回评论，synthesize 返回带轮次的提案
func debateWorker(id string) *mockWorker {
	w := newMockWorker(id)
	return w.WithFunc(func(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
		payload, _ := task.Payload.(map[string]any)
		switch task.Type {
		case "critique":
			return types.Success(id, fmt.Sprintf("critique from %s on %v", id, payload["proposal"]), 0), nil
		case "synthesize":
			return types.Success(id, fmt.Sprintf("synthesis round %v", payload["round"]), 0), nil
		default:
			return nil, fmt.Errorf("unexpected task type %q", task.Type)
		}
	})
}

func TestExecuteDebate_RunsExactRounds(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, debateWorker("w1"), debateWorker("w2"), debateWorker("w3"))

	result, err := o.ExecuteDebate(context.Background(), []string{"w1", "w2", "w3"}, "should we rewrite", 3, DebateOptions{})
	require.NoError(t, err)

	require.Len(t, result.Rounds, 3)
	for i, round := range result.Rounds {
		assert.Equal(t, i+1, round.Round)
		assert.Len(t, round.Critiques, 3)
	}
	assert.Equal(t, "synthesis round 3", result.FinalProposal)
}

func TestExecuteDebate_ProposalChainsAcrossRounds(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, debateWorker("w1"), debateWorker("w2"))

	result, err := o.ExecuteDebate(context.Background(), []string{"w1", "w2"}, "topic", 2, DebateOptions{})
	require.NoError(t, err)

	// 第一轮评论初始议题，第二轮评论第一轮的合成结果
	assert.Equal(t, "topic", result.Rounds[0].Proposal)
	assert.Equal(t, result.Rounds[0].Synthesis, result.Rounds[1].Proposal)
	assert.Equal(t, result.Rounds[1].Synthesis, result.FinalProposal)
}

func TestExecuteDebate_ToleratesCritiqueFailure(t *testing.T) {
	t.Parallel()
	broken := newMockWorker("broken").WithError(errors.New("down"))
	o := newTestOrchestrator(t, debateWorker("w1"), broken)

	result, err := o.ExecuteDebate(context.Background(), []string{"w1", "broken"}, "topic", 1, DebateOptions{})
	require.NoError(t, err)
	require.Len(t, result.Rounds, 1)
	// 失败的评论被剔除，辩论继续
	assert.Len(t, result.Rounds[0].Critiques, 1)
	assert.Equal(t, "w1", result.Rounds[0].Critiques[0].WorkerID)
}

func TestExecuteDebate_SynthesizerFailureAborts(t *testing.T) {
	t.Parallel()
	// 第一个 Worker 担任合成者，它失败则整个辩论失败
	broken := newMockWorker("broken").WithError(errors.New("down"))
	o := newTestOrchestrator(t, broken, debateWorker("w2"))

	_, err := o.ExecuteDebate(context.Background(), []string{"broken", "w2"}, "topic", 1, DebateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis")
}

func TestExecuteDebate_RequiresWorkersAndRounds(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, debateWorker("w1"))

	_, err := o.ExecuteDebate(context.Background(), nil, "topic", 1, DebateOptions{})
	require.Error(t, err)

	_, err = o.ExecuteDebate(context.Background(), []string{"w1"}, "topic", 0, DebateOptions{})
	require.Error(t, err)
}
