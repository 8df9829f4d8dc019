package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_events (
	consumer_group TEXT NOT NULL,
	event_id       TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (consumer_group, event_id)
);
CREATE INDEX IF NOT EXISTS idx_processed_events_processed_at ON processed_events (processed_at)`

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the processed events table if it is missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// IsEventProcessed checks if a consumer group has already processed an event
func (s *Store) IsEventProcessed(ctx context.Context, consumerGroup, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE consumer_group = $1 AND event_id = $2)",
		consumerGroup, eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed for a consumer group
func (s *Store) MarkEventProcessed(ctx context.Context, consumerGroup, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (consumer_group, event_id, event_type) VALUES ($1, $2, $3)
		ON CONFLICT (consumer_group, event_id) DO NOTHING`,
		consumerGroup, eventID, eventType)
	return err
}

// PruneProcessedEvents deletes ledger entries older than the cutoff
func (s *Store) PruneProcessedEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM processed_events WHERE processed_at < $1", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
