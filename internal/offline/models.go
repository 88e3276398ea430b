package offline

import (
	"time"

	"pickline/internal/picking"
)

// Entry is one queued action awaiting delivery.
type Entry struct {
	Seq           int64          `json:"seq"`
	Action        picking.Action `json:"action"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"nextAttemptAt,omitzero"`
	LastError     string         `json:"lastError,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Ready reports whether the entry's backoff deadline has passed.
func (e Entry) Ready(now time.Time) bool {
	return e.NextAttemptAt.IsZero() || !now.Before(e.NextAttemptAt)
}

// DeadLetter is an action the server rejected permanently.
type DeadLetter struct {
	ID          int64          `json:"id"`
	OriginalSeq int64          `json:"originalSeq"`
	Action      picking.Action `json:"action"`
	Attempts    int            `json:"attempts"`
	StatusCode  int            `json:"statusCode"`
	Reason      string         `json:"reason"`
	CreatedAt   time.Time      `json:"createdAt"`
	FailedAt    time.Time      `json:"failedAt"`
}

// Backoff returns the delay before retry number attempts (1-based):
// base doubled per earlier failure, capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
