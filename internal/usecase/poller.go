package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

// PollerDeps wires the driven adapters into the poll orchestrator.
type PollerDeps struct {
	Registry  ports.SearchRegistry
	Ledger    ports.SeenLedger
	Fetcher   ports.PageFetcher
	Extractor ports.AdExtractor
	Notifier  ports.Notifier
	Metrics   ports.BlockMetrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// PollerConfig holds per-process polling limits.
type PollerConfig struct {
	MaxSearches   int
	BlockDuration time.Duration
	// Concurrency bounds how many searches are processed at once.
	// Values below 2 process searches one after another.
	Concurrency   int
	NotifyTimeout time.Duration
}

// TickStats summarizes a single sweep.
type TickStats struct {
	Eligible int
	Checked  int
	Blocked  int
	Skipped  int
	Failed   int
	NewAds   int
}

// Poller runs ticks: fetch every eligible search, report unseen ads, record outcomes.
type Poller struct {
	registry  ports.SearchRegistry
	ledger    ports.SeenLedger
	fetcher   ports.PageFetcher
	extractor ports.AdExtractor
	notifier  ports.Notifier
	metrics   ports.BlockMetrics
	logger    *slog.Logger
	now       func() time.Time
	cfg       PollerConfig
	backoff   domain.Backoff

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

type outcome int

const (
	outcomeChecked outcome = iota
	outcomeBlocked
	outcomeSkipped
	outcomeFailed
)

// NewPoller constructs the orchestrator.
func NewPoller(deps PollerDeps, cfg PollerConfig) *Poller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		registry:  deps.Registry,
		ledger:    deps.Ledger,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       now,
		cfg:       cfg,
		backoff:   domain.Backoff{Duration: cfg.BlockDuration},
		inFlight:  make(map[int64]struct{}),
	}
}

// Tick performs one sweep over the eligible searches.
// It returns an error only when the search list cannot be loaded or ctx
// was cancelled before every search was started.
func (p *Poller) Tick(ctx context.Context) (TickStats, error) {
	logger := p.logger.With("tick", uuid.NewString())

	searches, err := p.registry.EligibleSearches(ctx, p.now(), p.cfg.MaxSearches)
	if err != nil {
		return TickStats{}, fmt.Errorf("load eligible searches: %w", err)
	}

	stats := TickStats{Eligible: len(searches)}
	var statsMu sync.Mutex
	record := func(o outcome, newAds int) {
		statsMu.Lock()
		defer statsMu.Unlock()
		switch o {
		case outcomeChecked:
			stats.Checked++
		case outcomeBlocked:
			stats.Blocked++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeFailed:
			stats.Failed++
		}
		stats.NewAds += newAds
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, search := range searches {
		search := search
		if ctx.Err() != nil {
			break
		}
		if !p.acquire(search.SearchID) {
			logger.Debug("search already in progress", "search_id", search.SearchID)
			record(outcomeSkipped, 0)
			continue
		}

		g.Go(func() error {
			defer p.release(search.SearchID)
			searchLog := logger.With("search_id", search.SearchID)
			defer func() {
				if r := recover(); r != nil {
					searchLog.Error("search processing panicked", "panic", r)
					record(outcomeFailed, 0)
				}
			}()

			o, n := p.pollSearch(ctx, search, searchLog)
			record(o, n)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("tick finished",
		"eligible", stats.Eligible,
		"checked", stats.Checked,
		"blocked", stats.Blocked,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"new_ads", stats.NewAds,
	)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("tick interrupted: %w", err)
	}
	return stats, nil
}

func (p *Poller) pollSearch(ctx context.Context, search domain.EligibleSearch, logger *slog.Logger) (outcome, int) {
	res, err := p.fetcher.Fetch(ctx, search.URL)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		return outcomeFailed, 0
	}

	if domain.IsBlockStatus(res.StatusCode) {
		total := int64(0)
		if p.metrics != nil {
			total = p.metrics.RecordBlock(res.StatusCode)
		}
		until := p.backoff.Until(p.now())
		if err := p.registry.MarkBlocked(ctx, search.SearchID, until); err != nil {
			logger.Error("mark blocked", "error", err)
			return outcomeFailed, 0
		}
		logger.Warn("search blocked",
			"status", res.StatusCode,
			"total", total,
			"blocked_until", until.UTC().Format(time.RFC3339),
		)
		return outcomeBlocked, 0
	}

	if res.StatusCode != http.StatusOK || res.Body == "" {
		logger.Info("nothing to process", "status", res.StatusCode, "body_bytes", len(res.Body))
		return outcomeSkipped, 0
	}
	logger.Info("fetched search page", "status", res.StatusCode, "body_bytes", len(res.Body))

	ads, err := p.extract(res.Body)
	if err != nil {
		logger.Error("extract ads", "error", err)
		p.touch(ctx, search.SearchID, logger)
		return outcomeFailed, 0
	}

	seen, err := p.ledger.SeenIDs(ctx, search.SearchID)
	if err != nil {
		logger.Error("load seen ids", "error", err)
		return outcomeFailed, 0
	}

	fresh := 0
	for _, ad := range ads {
		if _, ok := seen[ad.ID]; ok {
			continue
		}
		if err := p.ledger.MarkSeen(ctx, search.SearchID, ad.ID); err != nil {
			logger.Error("mark seen", "ad_id", ad.ID, "error", err)
			return outcomeFailed, fresh
		}
		seen[ad.ID] = struct{}{}
		fresh++

		p.deliver(ctx, domain.Notification{
			OwnerID:      search.OwnerID,
			SearchName:   search.Name,
			Ad:           ad,
			DiscoveredAt: p.now().UTC(),
		}, logger)
	}

	p.touch(ctx, search.SearchID, logger)
	if fresh > 0 {
		logger.Info("new ads reported", "count", fresh, "candidates", len(ads))
	}
	return outcomeChecked, fresh
}

func (p *Poller) extract(html string) (ads []domain.Ad, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return p.extractor.Extract(html), nil
}

func (p *Poller) deliver(ctx context.Context, n domain.Notification, logger *slog.Logger) {
	if p.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked", "ad_id", n.Ad.ID, "panic", r)
		}
	}()
	if p.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.NotifyTimeout)
		defer cancel()
	}
	if err := p.notifier.Deliver(ctx, n); err != nil {
		logger.Error("deliver notification", "ad_id", n.Ad.ID, "error", err)
	}
}

func (p *Poller) touch(ctx context.Context, searchID int64, logger *slog.Logger) {
	if err := p.registry.UpdateLastCheck(ctx, searchID, p.now()); err != nil {
		logger.Error("update last check", "error", err)
	}
}

func (p *Poller) acquire(searchID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[searchID]; busy {
		return false
	}
	p.inFlight[searchID] = struct{}{}
	return true
}

func (p *Poller) release(searchID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, searchID)
}
