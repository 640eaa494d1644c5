package domain

import (
	"errors"
	"time"
)

// ErrSearchLimit is returned when the global number of searches is exhausted.
var ErrSearchLimit = errors.New("search limit reached")

// User owns searches and receives notifications.
type User struct {
	ID         int64
	TelegramID int64
	CreatedAt  time.Time
}

// Search is a saved query monitored by the poller.
type Search struct {
	ID           int64
	UserID       int64
	URL          string
	Name         string
	MaxPrice     float64
	Active       bool
	LastCheckAt  *time.Time
	BlockedUntil *time.Time
}

// Eligible reports whether the search may be fetched at now.
// A search is blocked only while BlockedUntil lies strictly in the future.
func (s Search) Eligible(now time.Time) bool {
	if !s.Active {
		return false
	}
	return s.BlockedUntil == nil || !s.BlockedUntil.After(now)
}

// EligibleSearch is the per-tick view of a search joined with its owner.
type EligibleSearch struct {
	SearchID    int64
	OwnerID     int64
	URL         string
	Name        string
	LastCheckAt *time.Time
}

// Backoff computes the cooldown window after a block signal.
// The duration is fixed; it does not escalate on consecutive blocks.
type Backoff struct {
	Duration time.Duration
}

// Until returns the moment the search becomes eligible again.
func (b Backoff) Until(now time.Time) time.Time {
	return now.Add(b.Duration)
}

// IsBlockStatus reports whether an HTTP status is a rate-limit or ban signal.
func IsBlockStatus(code int) bool {
	return code == 403 || code == 429
}
