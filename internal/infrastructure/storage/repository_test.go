package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

type repository interface {
	ports.SearchRegistry
	ports.SeenLedger
	ports.SearchWriter
	ports.SearchReader
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := ApplySchema(context.Background(), db, DialectSQLite); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func eachRepository(t *testing.T, test func(t *testing.T, repo repository)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		test(t, NewSQLRepository(openTestDB(t), DialectSQLite))
	})
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		test(t, NewMemoryRepository())
	})
}

func seedSearch(t *testing.T, repo repository, telegramID int64, name string) domain.Search {
	t.Helper()
	ctx := context.Background()
	user, err := repo.EnsureUser(ctx, telegramID)
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	s, err := repo.CreateSearch(ctx, domain.Search{
		UserID:   user.ID,
		URL:      "https://www.avito.ru/moskva?maxPrice=1000",
		Name:     name,
		MaxPrice: 1000,
		Active:   true,
	}, 0)
	if err != nil {
		t.Fatalf("create search: %v", err)
	}
	return s
}

func TestApplySchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	if err := ApplySchema(context.Background(), db, DialectSQLite); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	for _, table := range []string{"users", "searches", "seen_ads"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s not found: %v", table, err)
		}
	}
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		s := seedSearch(t, repo, 1, "chairs")

		for i := 0; i < 2; i++ {
			if err := repo.MarkSeen(ctx, s.ID, "12345"); err != nil {
				t.Fatalf("mark seen #%d: %v", i, err)
			}
		}
		if err := repo.MarkSeen(ctx, s.ID, "67890"); err != nil {
			t.Fatalf("mark seen: %v", err)
		}

		seen, err := repo.SeenIDs(ctx, s.ID)
		if err != nil {
			t.Fatalf("seen ids: %v", err)
		}
		if len(seen) != 2 {
			t.Fatalf("expected 2 seen ids, got %d", len(seen))
		}
		if _, ok := seen["12345"]; !ok {
			t.Fatalf("expected 12345 in seen set")
		}
	})
}

func TestSeenSetsAreScopedPerSearch(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		a := seedSearch(t, repo, 1, "a")
		b := seedSearch(t, repo, 1, "b")

		if err := repo.MarkSeen(ctx, a.ID, "1"); err != nil {
			t.Fatalf("mark seen: %v", err)
		}

		seen, err := repo.SeenIDs(ctx, b.ID)
		if err != nil {
			t.Fatalf("seen ids: %v", err)
		}
		if len(seen) != 0 {
			t.Fatalf("expected empty set for other search, got %v", seen)
		}
	})
}

func TestEligibleSearchesHonourBlocks(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		now := time.Date(2025, time.February, 14, 12, 0, 0, 0, time.UTC)

		free := seedSearch(t, repo, 10, "free")
		blocked := seedSearch(t, repo, 20, "blocked")
		expired := seedSearch(t, repo, 30, "expired")

		if err := repo.MarkBlocked(ctx, blocked.ID, now.Add(time.Minute)); err != nil {
			t.Fatalf("mark blocked: %v", err)
		}
		if err := repo.MarkBlocked(ctx, expired.ID, now.Add(-time.Minute)); err != nil {
			t.Fatalf("mark blocked: %v", err)
		}

		got, err := repo.EligibleSearches(ctx, now, 10)
		if err != nil {
			t.Fatalf("eligible: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 eligible searches, got %+v", got)
		}
		if got[0].SearchID != free.ID || got[0].OwnerID != 10 || got[0].Name != "free" {
			t.Fatalf("unexpected first search: %+v", got[0])
		}
		if got[1].SearchID != expired.ID || got[1].OwnerID != 30 {
			t.Fatalf("unexpected second search: %+v", got[1])
		}

		later, err := repo.EligibleSearches(ctx, now.Add(2*time.Minute), 10)
		if err != nil {
			t.Fatalf("eligible later: %v", err)
		}
		if len(later) != 3 {
			t.Fatalf("block should lapse by itself, got %d searches", len(later))
		}
	})
}

func TestEligibleSearchesLimitAndInactive(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			seedSearch(t, repo, int64(i+1), "s")
		}
		user, _ := repo.EnsureUser(ctx, 99)
		if _, err := repo.CreateSearch(ctx, domain.Search{UserID: user.ID, URL: "u", Name: "off", MaxPrice: 1}, 0); err != nil {
			t.Fatalf("create inactive: %v", err)
		}

		got, err := repo.EligibleSearches(ctx, time.Now(), 2)
		if err != nil {
			t.Fatalf("eligible: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected limit of 2, got %d", len(got))
		}

		all, err := repo.EligibleSearches(ctx, time.Now(), 0)
		if err != nil {
			t.Fatalf("eligible: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("inactive search must be excluded, got %d", len(all))
		}
	})
}

func TestUpdateLastCheckAndBlockedUntil(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		s := seedSearch(t, repo, 1, "x")
		at := time.Date(2025, time.March, 1, 8, 30, 0, 0, time.UTC)

		if err := repo.UpdateLastCheck(ctx, s.ID, at); err != nil {
			t.Fatalf("update last check: %v", err)
		}
		if err := repo.MarkBlocked(ctx, s.ID, at.Add(600*time.Second)); err != nil {
			t.Fatalf("mark blocked: %v", err)
		}

		got, err := repo.GetSearch(ctx, s.ID)
		if err != nil {
			t.Fatalf("get search: %v", err)
		}
		if got.LastCheckAt == nil || !got.LastCheckAt.Equal(at) {
			t.Fatalf("unexpected last check: %v", got.LastCheckAt)
		}
		if got.BlockedUntil == nil || !got.BlockedUntil.Equal(at.Add(10*time.Minute)) {
			t.Fatalf("unexpected blocked until: %v", got.BlockedUntil)
		}

		if err := repo.UpdateLastCheck(ctx, 4242, at); err != nil {
			t.Fatalf("unknown search must be ignored: %v", err)
		}
	})
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()

		first, err := repo.EnsureUser(ctx, 555)
		if err != nil {
			t.Fatalf("ensure user: %v", err)
		}
		again, err := repo.EnsureUser(ctx, 555)
		if err != nil {
			t.Fatalf("ensure user again: %v", err)
		}
		if first.ID != again.ID || again.TelegramID != 555 {
			t.Fatalf("expected the same user, got %+v and %+v", first, again)
		}
	})
}

func TestCreateSearchEnforcesLimit(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		user, err := repo.EnsureUser(ctx, 1)
		if err != nil {
			t.Fatalf("ensure user: %v", err)
		}
		search := domain.Search{UserID: user.ID, URL: "u", Name: "n", MaxPrice: 1, Active: true}

		for i := 0; i < 2; i++ {
			if _, err := repo.CreateSearch(ctx, search, 2); err != nil {
				t.Fatalf("create #%d: %v", i, err)
			}
		}
		if _, err := repo.CreateSearch(ctx, search, 2); !errors.Is(err, domain.ErrSearchLimit) {
			t.Fatalf("expected ErrSearchLimit, got %v", err)
		}
		if _, err := repo.CreateSearch(ctx, search, 0); err != nil {
			t.Fatalf("zero limit must not restrict: %v", err)
		}

		all, err := repo.EligibleSearches(ctx, time.Now(), 0)
		if err != nil {
			t.Fatalf("eligible: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 stored searches, got %d", len(all))
		}
	})
}

func TestCreateSearchLimitUnderConcurrency(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		ctx := context.Background()
		user, err := repo.EnsureUser(ctx, 1)
		if err != nil {
			t.Fatalf("ensure user: %v", err)
		}

		const limit = 3
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CreateSearch(ctx, domain.Search{UserID: user.ID, URL: "u", Name: "n", MaxPrice: 1, Active: true}, limit)
				if err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				} else if !errors.Is(err, domain.ErrSearchLimit) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if created != limit {
			t.Fatalf("expected exactly %d searches, got %d", limit, created)
		}
	})
}

func TestNewSQLRepositoryPlaceholders(t *testing.T) {
	t.Parallel()

	cases := map[Dialect]string{
		DialectPostgres: "SELECT id FROM searches WHERE id = $1",
		DialectSQLite:   "SELECT id FROM searches WHERE id = ?",
	}
	for dialect, want := range cases {
		repo := NewSQLRepository(nil, dialect)
		got, _, err := repo.sb.Select("id").From("searches").Where(sq.Eq{"id": 1}).ToSql()
		if err != nil {
			t.Fatalf("%s: build: %v", dialect, err)
		}
		if got != want {
			t.Fatalf("%s: got %q, want %q", dialect, got, want)
		}
	}
}

func TestGetSearchNotFound(t *testing.T) {
	t.Parallel()
	eachRepository(t, func(t *testing.T, repo repository) {
		if _, err := repo.GetSearch(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	db, dialect, err := Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if dialect != DialectSQLite {
		t.Fatalf("unexpected dialect: %s", dialect)
	}

	repo := NewSQLRepository(db, dialect)
	s := seedSearch(t, repo, 7, "opened")
	if s.ID == 0 {
		t.Fatal("expected assigned id")
	}
}
