package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"AvitoMonitor/internal/domain"
	"AvitoMonitor/internal/ports"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLRepository persists users, searches and seen ads in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	now     func() time.Time
}

var (
	_ ports.SearchRegistry = (*SQLRepository)(nil)
	_ ports.SeenLedger     = (*SQLRepository)(nil)
	_ ports.SearchWriter   = (*SQLRepository)(nil)
	_ ports.SearchReader   = (*SQLRepository)(nil)
)

// NewSQLRepository wires a sql.DB opened with the driver matching dialect.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	var format sq.PlaceholderFormat = sq.Dollar
	if dialect == DialectSQLite {
		format = sq.Question
	}
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
		now:     time.Now,
	}
}

// EligibleSearches returns active searches that are not in a cooldown window.
func (r *SQLRepository) EligibleSearches(ctx context.Context, now time.Time, limit int) ([]domain.EligibleSearch, error) {
	builder := r.sb.
		Select("s.id", "u.telegram_id", "s.search_url", "s.name", "s.last_check_at").
		From("searches s").
		Join("users u ON u.id = s.user_id").
		Where(sq.Eq{"s.is_active": true}).
		Where(sq.Or{
			sq.Eq{"s.blocked_until": nil},
			sq.LtOrEq{"s.blocked_until": now.UnixMilli()},
		}).
		OrderBy("s.id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build eligible query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query eligible searches: %w", err)
	}
	defer rows.Close()

	var result []domain.EligibleSearch
	for rows.Next() {
		var (
			item      domain.EligibleSearch
			lastCheck sql.NullInt64
		)
		if err := rows.Scan(&item.SearchID, &item.OwnerID, &item.URL, &item.Name, &lastCheck); err != nil {
			return nil, fmt.Errorf("scan eligible search: %w", err)
		}
		item.LastCheckAt = fromMillis(lastCheck)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// MarkBlocked sets the cooldown deadline. Unknown searches are ignored.
func (r *SQLRepository) MarkBlocked(ctx context.Context, searchID int64, until time.Time) error {
	return r.updateSearch(ctx, searchID, "blocked_until", until.UnixMilli())
}

// UpdateLastCheck records the moment the search page was last processed.
func (r *SQLRepository) UpdateLastCheck(ctx context.Context, searchID int64, at time.Time) error {
	return r.updateSearch(ctx, searchID, "last_check_at", at.UnixMilli())
}

func (r *SQLRepository) updateSearch(ctx context.Context, searchID int64, column string, value any) error {
	query, args, err := r.sb.Update("searches").
		Set(column, value).
		Where(sq.Eq{"id": searchID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update %s: %w", column, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

// SeenIDs returns every ad id recorded for the search.
func (r *SQLRepository) SeenIDs(ctx context.Context, searchID int64) (map[string]struct{}, error) {
	query, args, err := r.sb.Select("avito_ad_id").
		From("seen_ads").
		Where(sq.Eq{"search_id": searchID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build seen query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen ids: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen id: %w", err)
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return seen, nil
}

// MarkSeen records an ad id; repeating the call for the same pair is a no-op.
func (r *SQLRepository) MarkSeen(ctx context.Context, searchID int64, adID string) error {
	query, args, err := r.sb.Insert("seen_ads").
		Columns("search_id", "avito_ad_id", "first_seen_at").
		Values(searchID, adID, r.now().UnixMilli()).
		Suffix("ON CONFLICT (search_id, avito_ad_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark seen: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// EnsureUser returns the user for a Telegram id, creating it if needed.
func (r *SQLRepository) EnsureUser(ctx context.Context, telegramID int64) (domain.User, error) {
	insert, args, err := r.sb.Insert("users").
		Columns("telegram_id", "created_at").
		Values(telegramID, r.now().UnixMilli()).
		Suffix("ON CONFLICT (telegram_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("build ensure user: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, insert, args...); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}

	query, args, err := r.sb.Select("id", "telegram_id", "created_at").
		From("users").
		Where(sq.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return domain.User{}, fmt.Errorf("build user query: %w", err)
	}

	var (
		user    domain.User
		created int64
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.TelegramID, &created); err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(created).UTC()
	return user, nil
}

// CreateSearch inserts a search and returns it with its assigned id.
// With limit > 0 the insert is refused with domain.ErrSearchLimit once the
// table already holds limit searches; the check and the insert share a
// transaction so concurrent registrations cannot overshoot.
func (r *SQLRepository) CreateSearch(ctx context.Context, search domain.Search, limit int) (domain.Search, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Search{}, fmt.Errorf("begin create search: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if limit > 0 {
		if r.dialect == DialectPostgres {
			if _, err := tx.ExecContext(ctx, "LOCK TABLE searches IN SHARE ROW EXCLUSIVE MODE"); err != nil {
				return domain.Search{}, fmt.Errorf("lock searches: %w", err)
			}
		}

		query, args, err := r.sb.Select("COUNT(*)").From("searches").ToSql()
		if err != nil {
			return domain.Search{}, fmt.Errorf("build count query: %w", err)
		}
		var count int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return domain.Search{}, fmt.Errorf("count searches: %w", err)
		}
		if count >= limit {
			return domain.Search{}, domain.ErrSearchLimit
		}
	}

	query, args, err := r.sb.Insert("searches").
		Columns("user_id", "search_url", "max_price", "name", "is_active").
		Values(search.UserID, search.URL, search.MaxPrice, search.Name, search.Active).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Search{}, fmt.Errorf("build create search: %w", err)
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&search.ID); err != nil {
		return domain.Search{}, fmt.Errorf("insert search: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Search{}, fmt.Errorf("commit create search: %w", err)
	}
	return search, nil
}

// GetSearch loads a single search by id.
func (r *SQLRepository) GetSearch(ctx context.Context, searchID int64) (domain.Search, error) {
	query, args, err := r.sb.
		Select("id", "user_id", "search_url", "name", "max_price", "is_active", "last_check_at", "blocked_until").
		From("searches").
		Where(sq.Eq{"id": searchID}).
		ToSql()
	if err != nil {
		return domain.Search{}, fmt.Errorf("build search query: %w", err)
	}

	var (
		s                  domain.Search
		lastCheck, blocked sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&s.ID, &s.UserID, &s.URL, &s.Name, &s.MaxPrice, &s.Active, &lastCheck, &blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Search{}, ErrNotFound
	}
	if err != nil {
		return domain.Search{}, fmt.Errorf("load search: %w", err)
	}
	s.LastCheckAt = fromMillis(lastCheck)
	s.BlockedUntil = fromMillis(blocked)
	return s, nil
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
