// Package store is the single persistence boundary of the engine. Typed
// entities from internal/domain cross into SQL here and nowhere else.
//
// Concurrency model: two dispatcher invocations may overlap, so every
// send-eligible row is claimed with a conditional UPDATE before any
// delivery attempt. Zero rows affected means another invocation got there
// first and the item must be skipped. Claims are recorded in a claimed_at
// column with a stale-claim window, so a crashed invocation's claims
// expire instead of wedging the item.
package store

import (
	"context"
	"database/sql"
	"time"
)

// ClaimWindow is how long a claim shields a row from other invocations.
// Longer than any realistic single-item send, shorter than the gap that
// would delay a retry noticeably.
const ClaimWindow = 5 * time.Minute

// Store wraps the Postgres connection with typed accessors.
type Store struct {
	db *sql.DB
}

// New creates a Store around an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for advisory locks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timeFromNull(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intFromNull(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}
