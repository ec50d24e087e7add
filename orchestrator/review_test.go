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

// creatorWorker 创建初始产物并按轮次修订
func creatorWorker(id string) *mockWorker {
	w := newMockWorker(id)
	return w.WithFunc(func(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
		switch task.Type {
		case "revise":
			payload, _ := task.Payload.(map[string]any)
			return types.Success(id, fmt.Sprintf("draft v%v", payload["round"]), 0), nil
		default:
			return types.Success(id, "draft v0", 0), nil
		}
	})
}

func reviewerWorker(id string) *mockWorker {
	w := newMockWorker(id)
	return w.WithFunc(func(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
		payload, _ := task.Payload.(map[string]any)
		return types.Success(id, fmt.Sprintf("%s reviewed %v", id, payload["artifact"]), 0), nil
	})
}

func TestExecuteReview_CreateReviewRevise(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, creatorWorker("creator"), reviewerWorker("r1"), reviewerWorker("r2"))

	result, err := o.ExecuteReview(context.Background(), "creator", []string{"r1", "r2"}, types.NewTask("write", nil), ReviewOptions{
		RevisionRounds: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "draft v0", result.InitialArtifact)
	assert.Equal(t, "draft v2", result.FinalArtifact)
	require.Len(t, result.Rounds, 2)

	// 每轮评审的是上一轮的修订稿
	assert.Equal(t, "draft v0", result.Rounds[0].Artifact)
	assert.Equal(t, "draft v1", result.Rounds[0].Revision)
	assert.Equal(t, "draft v1", result.Rounds[1].Artifact)
	assert.Len(t, result.Rounds[0].Reviews, 2)
}

func TestExecuteReview_ZeroRoundsReturnsInitial(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t, creatorWorker("creator"))

	result, err := o.ExecuteReview(context.Background(), "creator", nil, types.NewTask("write", nil), ReviewOptions{})
	require.NoError(t, err)
	assert.Equal(t, "draft v0", result.FinalArtifact)
	assert.Empty(t, result.Rounds)
}

func TestExecuteReview_CreatorFailureAborts(t *testing.T) {
	t.Parallel()
	broken := newMockWorker("creator").WithError(errors.New("down"))
	o := newTestOrchestrator(t, broken, reviewerWorker("r1"))

	_, err := o.ExecuteReview(context.Background(), "creator", []string{"r1"}, types.NewTask("write", nil), ReviewOptions{RevisionRounds: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creator")
}

func TestExecuteReview_ToleratesReviewerFailure(t *testing.T) {
	t.Parallel()
	broken := newMockWorker("broken").WithError(errors.New("down"))
	o := newTestOrchestrator(t, creatorWorker("creator"), reviewerWorker("r1"), broken)

	result, err := o.ExecuteReview(context.Background(), "creator", []string{"r1", "broken"}, types.NewTask("write", nil), ReviewOptions{RevisionRounds: 1})
	require.NoError(t, err)
	require.Len(t, result.Rounds, 1)
	assert.Len(t, result.Rounds[0].Reviews, 1)
	assert.Equal(t, "r1", result.Rounds[0].Reviews[0].ReviewerID)
}
