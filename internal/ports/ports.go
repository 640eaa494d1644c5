package ports

import (
	"context"
	"time"

	"AvitoMonitor/internal/domain"
)

// FetchResult is the outcome of a page request that reached the server.
// Non-2xx statuses are relayed here, not reported as errors.
type FetchResult struct {
	StatusCode int
	Body       string
}

// PageFetcher downloads search result pages.
// A non-nil error means the request never produced a response.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// AdExtractor turns page markup into normalized ads, in page order.
type AdExtractor interface {
	Extract(html string) []domain.Ad
}

// SearchRegistry supplies eligible searches and records poll outcomes.
type SearchRegistry interface {
	EligibleSearches(ctx context.Context, now time.Time, limit int) ([]domain.EligibleSearch, error)
	MarkBlocked(ctx context.Context, searchID int64, until time.Time) error
	UpdateLastCheck(ctx context.Context, searchID int64, at time.Time) error
}

// SeenLedger is the per-search set of already reported ad identifiers.
type SeenLedger interface {
	SeenIDs(ctx context.Context, searchID int64) (map[string]struct{}, error)
	MarkSeen(ctx context.Context, searchID int64, adID string) error
}

// SearchWriter persists users and searches created by the registration flow.
type SearchWriter interface {
	EnsureUser(ctx context.Context, telegramID int64) (domain.User, error)
	// CreateSearch fails with domain.ErrSearchLimit when limit > 0 searches
	// already exist. The check and the insert are atomic.
	CreateSearch(ctx context.Context, search domain.Search, limit int) (domain.Search, error)
}

// SearchReader loads a stored search by id.
type SearchReader interface {
	GetSearch(ctx context.Context, searchID int64) (domain.Search, error)
}

// Notifier delivers newly discovered ads to their owners.
type Notifier interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// BlockMetrics tallies block signals for the lifetime of the process.
type BlockMetrics interface {
	RecordBlock(status int) int64
}

// Scheduler controls when polling ticks execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
