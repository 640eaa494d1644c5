package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect selects placeholder style and DDL flavour.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Timestamps are unix milliseconds in every dialect.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id          BIGSERIAL PRIMARY KEY,
    telegram_id BIGINT NOT NULL,
    created_at  BIGINT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_users_telegram_id ON users(telegram_id);

CREATE TABLE IF NOT EXISTS searches (
    id            BIGSERIAL PRIMARY KEY,
    user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    search_url    TEXT NOT NULL,
    max_price     NUMERIC(12, 2) NOT NULL,
    name          VARCHAR(255) NOT NULL,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    last_check_at BIGINT,
    blocked_until BIGINT
);

CREATE TABLE IF NOT EXISTS seen_ads (
    id            BIGSERIAL PRIMARY KEY,
    search_id     BIGINT NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
    avito_ad_id   VARCHAR(64) NOT NULL,
    first_seen_at BIGINT NOT NULL,
    CONSTRAINT uq_search_avito_ad UNIQUE (search_id, avito_ad_id)
);
CREATE INDEX IF NOT EXISTS ix_seen_ads_avito_ad_id ON seen_ads(avito_ad_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    telegram_id INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_users_telegram_id ON users(telegram_id);

CREATE TABLE IF NOT EXISTS searches (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    search_url    TEXT NOT NULL,
    max_price     REAL NOT NULL,
    name          TEXT NOT NULL,
    is_active     INTEGER NOT NULL DEFAULT 1,
    last_check_at INTEGER,
    blocked_until INTEGER
);

CREATE TABLE IF NOT EXISTS seen_ads (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    search_id     INTEGER NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
    avito_ad_id   TEXT NOT NULL,
    first_seen_at INTEGER NOT NULL,
    UNIQUE (search_id, avito_ad_id)
);
CREATE INDEX IF NOT EXISTS ix_seen_ads_avito_ad_id ON seen_ads(avito_ad_id);
`

// ApplySchema creates tables and indexes. Safe to call on every start.
func ApplySchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	schema := postgresSchema
	if dialect == DialectSQLite {
		schema = sqliteSchema
	}

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
