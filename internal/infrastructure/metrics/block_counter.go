package metrics

import (
	"net/http"
	"sync/atomic"

	"AvitoMonitor/internal/ports"
)

// BlockCounter counts 403 and 429 responses since process start.
type BlockCounter struct {
	forbidden   atomic.Int64
	rateLimited atomic.Int64
}

var _ ports.BlockMetrics = (*BlockCounter)(nil)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Blocked403 int64 `json:"blocked_403"`
	Blocked429 int64 `json:"blocked_429"`
}

func NewBlockCounter() *BlockCounter {
	return &BlockCounter{}
}

// RecordBlock increments the counter for status and returns its new value.
// Statuses other than 403 and 429 are ignored and report zero.
func (c *BlockCounter) RecordBlock(status int) int64 {
	switch status {
	case http.StatusForbidden:
		return c.forbidden.Add(1)
	case http.StatusTooManyRequests:
		return c.rateLimited.Add(1)
	default:
		return 0
	}
}

func (c *BlockCounter) Snapshot() Snapshot {
	return Snapshot{
		Blocked403: c.forbidden.Load(),
		Blocked429: c.rateLimited.Load(),
	}
}
