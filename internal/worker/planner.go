package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/framekeep/framekeep/internal/asset"
	"github.com/framekeep/framekeep/internal/jobqueue"
	"github.com/framekeep/framekeep/internal/logger"
	"github.com/framekeep/framekeep/internal/processor/video"
	"github.com/framekeep/framekeep/internal/tracing"
)

// largeFileThreshold routes oversized originals to the large_files queue.
const largeFileThreshold = 50 << 20

// Guard is the idempotency check consulted before enqueueing a follow-up.
type Guard interface {
	TryClaim(ctx context.Context, assetID uuid.UUID, jobType jobqueue.JobType) bool
}

// Planner chains the pipeline: each completed stage enqueues the next one.
// The guard keeps concurrent same-stage completions (thumbnail and preview
// both landing) from double-enqueueing the follow-up.
type Planner struct {
	store jobqueue.Store
	guard Guard
}

func NewPlanner(store jobqueue.Store, guard Guard) *Planner {
	return &Planner{store: store, guard: guard}
}

// PlanAfter enqueues whatever the pipeline needs next for the asset, given
// the job type that just completed. Best-effort: a failed follow-up enqueue
// is logged, not returned, so it never fails the finished job; the enqueue
// retries when the sibling stage completes or via operator requeue.
func (p *Planner) PlanAfter(ctx context.Context, a *asset.Asset, done jobqueue.JobType) {
	switch done {
	case jobqueue.JobTypeExtractMetadata:
		queue := jobqueue.QueueDefault
		if a.SizeBytes > largeFileThreshold || video.IsVideoType(a.ContentType) {
			queue = jobqueue.QueueLargeFiles
		}
		p.enqueue(ctx, a.ID, jobqueue.JobTypeGenerateThumbnail, queue, 10, ThumbnailPayload{})
		p.enqueue(ctx, a.ID, jobqueue.JobTypeGeneratePreview, queue, 10, PreviewPayload{})

	case jobqueue.JobTypeGenerateThumbnail, jobqueue.JobTypeGeneratePreview:
		if !a.HasDerivatives() {
			return
		}
		p.enqueue(ctx, a.ID, jobqueue.JobTypeReverseGeocode, jobqueue.QueueDefault, 0, struct{}{})
		p.enqueue(ctx, a.ID, jobqueue.JobTypeDetectFaces, jobqueue.QueueAI, 0, struct{}{})
		p.enqueue(ctx, a.ID, jobqueue.JobTypeDetectObjects, jobqueue.QueueAI, 0, DetectObjectsPayload{})

	case jobqueue.JobTypeReverseGeocode, jobqueue.JobTypeDetectFaces, jobqueue.JobTypeDetectObjects:
		if !a.HasEnrichments() {
			return
		}
		p.enqueue(ctx, a.ID, jobqueue.JobTypeIndexSearch, jobqueue.QueueDefault, 0, struct{}{})
	}
}

func (p *Planner) enqueue(ctx context.Context, assetID uuid.UUID, t jobqueue.JobType, queue jobqueue.Queue, priority int32, payload any) {
	log := logger.FromContext(ctx)
	if p.guard != nil && !p.guard.TryClaim(ctx, assetID, t) {
		log.Debug("follow-up already enqueued", "asset_id", assetID.String(), "job_type", string(t))
		return
	}

	spanCtx, span := tracing.StartEnqueueSpan(ctx, string(queue), string(t))
	defer span.End()

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error("encode follow-up payload", "job_type", string(t), "error", err)
		return
	}
	job, err := p.store.Enqueue(spanCtx, jobqueue.NewJob{
		AssetID:  assetID,
		Type:     t,
		Queue:    queue,
		Priority: priority,
		Payload:  raw,
		TraceID:  tracing.InjectTraceParent(spanCtx),
	})
	if err != nil {
		tracing.RecordError(spanCtx, fmt.Errorf("enqueue follow-up: %w", err))
		log.Error("enqueue follow-up failed", "job_type", string(t), "error", err)
		return
	}
	log.Info("follow-up enqueued", "job_id", job.ID.String(), "job_type", string(t), "queue", string(queue))
}
