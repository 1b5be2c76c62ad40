package jobqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 30 * time.Second, CapDelay: 30 * time.Minute}

	tests := []struct {
		attempts int32
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 16 * time.Minute},
		{7, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestBackoffNonDecreasingAndCapped(t *testing.T) {
	policy := DefaultRetryPolicy()
	prev := time.Duration(0)
	for attempts := int32(1); attempts <= 32; attempts++ {
		d := policy.Backoff(attempts)
		assert.GreaterOrEqual(t, d, prev, "backoff decreased at attempt %d", attempts)
		assert.LessOrEqual(t, d, policy.CapDelay)
		prev = d
	}
}

func TestUnmarshalPayload(t *testing.T) {
	type payload struct {
		Size int `json:"size"`
	}

	j := &Job{Payload: json.RawMessage(`{"size": 320}`)}
	var p payload
	require.NoError(t, j.UnmarshalPayload(&p))
	assert.Equal(t, 320, p.Size)

	empty := &Job{}
	var q payload
	require.NoError(t, empty.UnmarshalPayload(&q))
	assert.Zero(t, q.Size)

	bad := &Job{Payload: json.RawMessage(`{`)}
	assert.Error(t, bad.UnmarshalPayload(&q))
}

func TestPermanentClassification(t *testing.T) {
	base := errors.New("no handler")

	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(base))))
	assert.False(t, IsPermanent(nil))

	// Classification survives wrapping without losing the original error.
	wrapped := fmt.Errorf("outer: %w", Permanent(base))
	assert.ErrorIs(t, wrapped, base)
}
