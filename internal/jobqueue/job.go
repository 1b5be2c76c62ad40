package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeExtractMetadata   JobType = "extract_metadata"
	JobTypeGenerateThumbnail JobType = "generate_thumbnail"
	JobTypeGeneratePreview   JobType = "generate_preview"
	JobTypeReverseGeocode    JobType = "reverse_geocode"
	JobTypeDetectFaces       JobType = "detect_faces"
	JobTypeDetectObjects     JobType = "detect_objects"
	JobTypeIndexSearch       JobType = "index_search"
)

type Queue string

const (
	QueueDefault    Queue = "default"
	QueueLargeFiles Queue = "large_files"
	QueuePriority   Queue = "priority"
	QueueAI         Queue = "ai"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Job is one row of the processing_jobs table. Rows are created by producers
// and mutated only through the store's Acquire/Complete/Fail/Release paths.
type Job struct {
	ID          uuid.UUID
	AssetID     uuid.UUID
	Type        JobType
	Queue       Queue
	Priority    int32
	Payload     json.RawMessage
	Status      Status
	Attempts    int32
	MaxAttempts int32
	WorkerID    *string
	LastError   *string
	Result      json.RawMessage
	TraceID     *string
	CreatedAt   time.Time
	NextRetryAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (j *Job) UnmarshalPayload(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("unmarshal payload for job %s: %w", j.ID, err)
	}
	return nil
}

// NewJob describes a row to enqueue. Producers fill AssetID, Type, Queue,
// Priority and Payload; the store owns everything else.
type NewJob struct {
	AssetID     uuid.UUID
	Type        JobType
	Queue       Queue
	Priority    int32
	Payload     json.RawMessage
	MaxAttempts int32
	TraceID     string
}

// RetryPolicy controls the delay before a failed job becomes eligible again:
// min(BaseDelay * 2^(attempts-1), CapDelay).
type RetryPolicy struct {
	BaseDelay time.Duration
	CapDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay: 30 * time.Second,
		CapDelay:  30 * time.Minute,
	}
}

func (p RetryPolicy) Backoff(attempts int32) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	for i := int32(1); i < attempts; i++ {
		delay *= 2
		if delay >= p.CapDelay {
			return p.CapDelay
		}
	}
	if delay > p.CapDelay {
		return p.CapDelay
	}
	return delay
}

// ListFilter narrows ListJobs. Zero values mean "any".
type ListFilter struct {
	Queue   Queue
	Status  Status
	Type    JobType
	AssetID uuid.UUID
	Limit   int32
	Offset  int32
}
