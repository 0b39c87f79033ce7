package queue

import (
	"time"

	"wikiseed/internal/config"
	"wikiseed/internal/database"
)

// Store manages job persistence on the shared database.
type Store struct {
	db  *database.DB
	cfg *config.Config
	now func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for every stamped timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConfig supplies per-kind policy (retry ceiling, exclusive targets).
func WithConfig(cfg *config.Config) Option {
	return func(s *Store) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// New wraps an open database. Without WithConfig the built-in kind policy applies.
func New(db *database.DB, opts ...Option) *Store {
	defaults := config.Default()
	store := &Store{
		db:  db,
		cfg: &defaults,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DB returns the underlying database handle.
func (s *Store) DB() *database.DB {
	return s.db
}

func (s *Store) timestamp() (time.Time, string) {
	now := s.now().UTC()
	return now, database.FormatTime(now)
}
