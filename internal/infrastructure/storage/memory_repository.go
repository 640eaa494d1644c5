package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

// MemoryRepository keeps users, searches and seen ads in process memory.
// Every method is atomic with respect to the others.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[int64]domain.User // by telegram id
	searches map[int64]*domain.Search
	seen     map[int64]map[string]time.Time
	nextUser int64
	nextID   int64
	now      func() time.Time
}

var (
	_ ports.SearchRegistry = (*MemoryRepository)(nil)
	_ ports.SeenLedger     = (*MemoryRepository)(nil)
	_ ports.SearchWriter   = (*MemoryRepository)(nil)
	_ ports.SearchReader   = (*MemoryRepository)(nil)
)

// NewMemoryRepository builds an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[int64]domain.User),
		searches: make(map[int64]*domain.Search),
		seen:     make(map[int64]map[string]time.Time),
		now:      time.Now,
	}
}

// EligibleSearches returns active, unblocked searches ordered by id.
func (m *MemoryRepository) EligibleSearches(_ context.Context, now time.Time, limit int) ([]domain.EligibleSearch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make(map[int64]int64, len(m.users))
	for _, u := range m.users {
		owners[u.ID] = u.TelegramID
	}

	ids := make([]int64, 0, len(m.searches))
	for id := range m.searches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var result []domain.EligibleSearch
	for _, id := range ids {
		s := m.searches[id]
		owner, ok := owners[s.UserID]
		if !ok || !s.Eligible(now) {
			continue
		}
		result = append(result, domain.EligibleSearch{
			SearchID:    s.ID,
			OwnerID:     owner,
			URL:         s.URL,
			Name:        s.Name,
			LastCheckAt: copyTime(s.LastCheckAt),
		})
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// MarkBlocked sets the cooldown deadline. Unknown searches are ignored.
func (m *MemoryRepository) MarkBlocked(_ context.Context, searchID int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.searches[searchID]; ok {
		s.BlockedUntil = &until
	}
	return nil
}

// UpdateLastCheck records the last processing time. Unknown searches are ignored.
func (m *MemoryRepository) UpdateLastCheck(_ context.Context, searchID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.searches[searchID]; ok {
		s.LastCheckAt = &at
	}
	return nil
}

// SeenIDs returns a snapshot of the seen set.
func (m *MemoryRepository) SeenIDs(_ context.Context, searchID int64) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.seen[searchID]))
	for id := range m.seen[searchID] {
		out[id] = struct{}{}
	}
	return out, nil
}

// MarkSeen adds an id to the seen set; duplicates keep their first timestamp.
func (m *MemoryRepository) MarkSeen(_ context.Context, searchID int64, adID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.seen[searchID]
	if !ok {
		set = make(map[string]time.Time)
		m.seen[searchID] = set
	}
	if _, dup := set[adID]; !dup {
		set[adID] = m.now()
	}
	return nil
}

// EnsureUser returns the user for a Telegram id, creating it if needed.
func (m *MemoryRepository) EnsureUser(_ context.Context, telegramID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[telegramID]; ok {
		return u, nil
	}
	m.nextUser++
	u := domain.User{ID: m.nextUser, TelegramID: telegramID, CreatedAt: m.now().UTC()}
	m.users[telegramID] = u
	return u, nil
}

// CreateSearch stores a copy of the search under a fresh id.
// With limit > 0 it fails with domain.ErrSearchLimit once limit searches exist.
func (m *MemoryRepository) CreateSearch(_ context.Context, search domain.Search, limit int) (domain.Search, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && len(m.searches) >= limit {
		return domain.Search{}, domain.ErrSearchLimit
	}
	m.nextID++
	search.ID = m.nextID
	search.LastCheckAt = copyTime(search.LastCheckAt)
	search.BlockedUntil = copyTime(search.BlockedUntil)
	stored := search
	m.searches[search.ID] = &stored
	return search, nil
}

// GetSearch returns a copy of a stored search.
func (m *MemoryRepository) GetSearch(_ context.Context, searchID int64) (domain.Search, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.searches[searchID]
	if !ok {
		return domain.Search{}, ErrNotFound
	}
	out := *s
	out.LastCheckAt = copyTime(s.LastCheckAt)
	out.BlockedUntil = copyTime(s.BlockedUntil)
	return out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
