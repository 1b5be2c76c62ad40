package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EnqueueGuard keeps producers from double-enqueuing the same (asset, jobType)
// while a job for it is still live. It is advisory: if redis is down the
// producer enqueues anyway, since a duplicate job is harmless and a blocked
// upload pipeline is not.
type EnqueueGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEnqueueGuard(client *redis.Client, ttl time.Duration) *EnqueueGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &EnqueueGuard{client: client, ttl: ttl}
}

func guardKey(assetID uuid.UUID, jobType JobType) string {
	return fmt.Sprintf("enqueue:%s:%s", assetID, jobType)
}

// TryClaim returns true when the caller should enqueue. A false return means
// an equivalent job was enqueued within the TTL window.
func (g *EnqueueGuard) TryClaim(ctx context.Context, assetID uuid.UUID, jobType JobType) bool {
	if g == nil || g.client == nil {
		return true
	}
	ok, err := g.client.SetNX(ctx, guardKey(assetID, jobType), "1", g.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// Clear drops the claim once the job reaches a terminal state so the asset can
// be reprocessed without waiting out the TTL.
func (g *EnqueueGuard) Clear(ctx context.Context, assetID uuid.UUID, jobType JobType) {
	if g == nil || g.client == nil {
		return
	}
	_ = g.client.Del(ctx, guardKey(assetID, jobType)).Err()
}
