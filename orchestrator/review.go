package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReviewOptions executeReview 的选项
type ReviewOptions struct {
	Timeout time.Duration
	// 评审-修订轮数
	RevisionRounds int
}

// Review 单个评审者的意见
type Review struct {
	ReviewerID string `json:"reviewer_id"`
	Content    string `json:"content"`
}

// ReviewRound 一轮评审-修订的完整记录
type ReviewRound struct {
	Round    int      `json:"round"`
	Artifact string   `json:"artifact"`
	Reviews  []Review `json:"reviews"`
	Revision string   `json:"revision"`
}

// ReviewResult 评审结果：最终产物与完整评审历史
type ReviewResult struct {
	InitialArtifact string        `json:"initial_artifact"`
	FinalArtifact   string        `json:"final_artifact"`
	Rounds          []ReviewRound `json:"rounds"`
	Duration        time.Duration `json:"duration"`
}

// ExecuteReview 创建-评审-修订模式。
//
// 创建者先产出初始产物；随后进行 revisionRounds 轮顺序迭代：所有评审者
// 并行评审当前产物，创建者依据该轮全部评审意见修订。
func (o *Orchestrator) ExecuteReview(ctx context.Context, creatorID string, reviewerIDs []string, task *types.Task, opts ReviewOptions) (*ReviewResult, error) {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.executeReview")
	span.SetAttributes(
		attribute.String("creator", creatorID),
		attribute.Int("reviewers", len(reviewerIDs)),
		attribute.Int("revision_rounds", opts.RevisionRounds),
	)
	defer span.End()

	o.logger.Info("review started",
		zap.String("creator", creatorID),
		zap.Int("reviewers", len(reviewerIDs)),
		zap.Int("revision_rounds", opts.RevisionRounds),
	)

	// 1. 创建者产出初始产物
	created := o.dispatchWithRetry(ctx, creatorID, task, opts.Timeout, 1)
	if !created.Success {
		return nil, fmt.Errorf("creator %s failed: %w", creatorID, created.Err)
	}
	artifact := contentOf(created)
	initial := artifact

	// 2. 顺序的评审-修订轮
	history := make([]ReviewRound, 0, opts.RevisionRounds)
	for round := 1; round <= opts.RevisionRounds; round++ {
		reviews, err := o.collectReviews(ctx, reviewerIDs, artifact, round, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("review round %d: %w", round, err)
		}

		revision, err := o.reviseArtifact(ctx, creatorID, artifact, reviews, round, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("review round %d revision: %w", round, err)
		}

		history = append(history, ReviewRound{
			Round:    round,
			Artifact: artifact,
			Reviews:  reviews,
			Revision: revision,
		})
		artifact = revision

		o.logger.Debug("review round completed",
			zap.Int("round", round),
			zap.Int("reviews", len(reviews)),
		)
	}

	result := &ReviewResult{
		InitialArtifact: initial,
		FinalArtifact:   artifact,
		Rounds:          history,
		Duration:        time.Since(start),
	}
	if o.collector != nil {
		o.collector.RecordPatternExecution("review", "success", result.Duration)
	}
	o.logger.Info("review completed", zap.Duration("duration", result.Duration))
	return result, nil
}

// collectReviews 并行收集评审意见；单个评审失败仅告警
func (o *Orchestrator) collectReviews(ctx context.Context, reviewerIDs []string, artifact string, round int, timeout time.Duration) ([]Review, error) {
	slots := make([]*Review, len(reviewerIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range reviewerIDs {
		g.Go(func() error {
			task := types.NewTask("review", map[string]any{
				"artifact": artifact,
				"round":    round,
			})
			result := o.dispatchWithRetry(gctx, id, task, timeout, 1)
			if !result.Success {
				o.logger.Warn("review failed",
					zap.String("reviewer_id", id),
					zap.Int("round", round),
					zap.Error(result.Err),
				)
				return nil
			}
			slots[i] = &Review{ReviewerID: id, Content: contentOf(result)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reviews := make([]Review, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			reviews = append(reviews, *r)
		}
	}
	return reviews, nil
}

// reviseArtifact 创建者依据该轮全部评审意见修订产物
func (o *Orchestrator) reviseArtifact(ctx context.Context, creatorID, artifact string, reviews []Review, round int, timeout time.Duration) (string, error) {
	reviewContents := make([]map[string]any, 0, len(reviews))
	for _, r := range reviews {
		reviewContents = append(reviewContents, map[string]any{
			"reviewer_id": r.ReviewerID,
			"content":     r.Content,
		})
	}

	task := types.NewTask("revise", map[string]any{
		"artifact": artifact,
		"reviews":  reviewContents,
		"round":    round,
	})
	result := o.dispatchWithRetry(ctx, creatorID, task, timeout, 1)
	if !result.Success {
		return "", fmt.Errorf("creator %s revision failed: %w", creatorID, result.Err)
	}
	return contentOf(result), nil
}
