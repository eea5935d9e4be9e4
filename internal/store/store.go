package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Store is the Postgres-backed persistent store. A Store without a
// connection reports every call as unavailable, which lets the process
// start in degraded mode.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore connects to Postgres.
func NewStore(databaseURL string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewWithDB(db, timeout), nil
}

// NewWithDB wraps an existing connection. db may be nil.
func NewWithDB(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Disconnected returns a Store that is permanently unavailable.
func Disconnected() *Store {
	return NewWithDB(nil, 0)
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Connected() bool { return s.db != nil }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return ErrUnavailable
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// CreateEvent inserts an event.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if s.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO events (id, name, starts_at, venue, price, capacity, sold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	if err := s.db.GetContext(ctx, &event.CreatedAt, query,
		event.ID, event.Name, event.StartsAt, event.Venue, event.Price, event.Capacity, event.Sold); err != nil {
		return failure("failed to insert event", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) Lookup[models.Event] {
	if s.db == nil {
		return Failed[models.Event](ErrUnavailable)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var event models.Event
	err := s.db.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1", id)
	return lookupResult(&event, err)
}

// ListEvents returns events ordered by start time.
func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	if s.db == nil {
		return nil, ErrUnavailable
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var events []models.Event
	err := s.db.SelectContext(ctx, &events, "SELECT * FROM events ORDER BY starts_at, id")
	return events, err
}

// ReserveSeat increments the sold count if capacity remains.
func (s *Store) ReserveSeat(ctx context.Context, eventID string) error {
	if s.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"UPDATE events SET sold = sold + 1 WHERE id = $1 AND sold < capacity", eventID)
	if err != nil {
		return failure("failed to reserve seat", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSoldOut
	}
	return nil
}

// ReleaseSeat gives a seat back after a cancellation or refund.
func (s *Store) ReleaseSeat(ctx context.Context, eventID string) error {
	if s.db == nil {
		return ErrUnavailable
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		"UPDATE events SET sold = sold - 1 WHERE id = $1 AND sold > 0", eventID)
	return err
}

// failure wraps err with ErrUnavailable unless Postgres itself answered
// with an error, so callers only fall back when the database is unreachable.
func failure(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func lookupResult[T any](v *T, err error) Lookup[T] {
	if errors.Is(err, sql.ErrNoRows) {
		return Missing[T]()
	}
	if err != nil {
		return Failed[T](fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return FoundValue(v)
}
