// Package stats persists lightweight usage counters: unique-ish visitor
// counts and per-button presses. Failures are logged and dropped; analytics
// must never slow down or break a conversation.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pondmobile/supportbot/core/logger"
)

// Store increments named counters in Postgres.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Bump increments a counter by one, creating it on first use. Errors are
// swallowed after logging; callers treat this as fire-and-forget.
func (s *Store) Bump(ctx context.Context, counter string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stat_counters (name, value, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (name)
		DO UPDATE SET value = stat_counters.value + 1, updated_at = NOW()`,
		counter,
	)
	if err != nil && logger.Stats != nil {
		logger.Stats.LogAttrs(ctx, slog.LevelWarn, "stats.bump_failed",
			slog.String("event", "stats.bump_failed"),
			slog.String("button", counter),
			slog.String("err", err.Error()))
	}
}

// Counter is one named counter row.
type Counter struct {
	Name      string    `db:"name"`
	Value     int64     `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Snapshot returns all counters ordered by name, for the admin report.
func (s *Store) Snapshot(ctx context.Context) ([]Counter, error) {
	var out []Counter
	if err := s.db.SelectContext(ctx, &out,
		`SELECT name, value, updated_at FROM stat_counters ORDER BY name`); err != nil {
		return nil, err
	}
	return out, nil
}
