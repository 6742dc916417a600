// Package repository implements all database queries for eventboard.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventboard/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when an account with the same email already exists.
var ErrEmailTaken = errors.New("email already registered")

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// eventColumns selects an event with its creator eagerly joined and attendee
// ids aggregated into an array, so one query yields the full domain shape.
const eventColumns = `
	SELECT e.id, e.title, e.description, e.date,
	       u.id, u.email, u.created_at,
	       COALESCE(array_agg(a.user_id ORDER BY a.user_id)
	                FILTER (WHERE a.user_id IS NOT NULL), '{}')
	FROM events e
	JOIN users u ON u.id = e.creator_id
	LEFT JOIN event_attendees a ON a.event_id = e.id`

// EventRepository handles persistence for events and their attendee set.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Insert stores a new event and fills in the generated id.
func (r *EventRepository) Insert(ctx context.Context, e *model.Event) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO events (title, description, date, creator_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		e.Title, e.Description, e.Date, e.Creator.ID,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an event. The creator column is
// never touched.
func (r *EventRepository) Update(ctx context.Context, e model.Event) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET title = $1, description = $2, date = $3 WHERE id = $4`,
		e.Title, e.Description, e.Date, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID returns a single event with creator and attendees, or ErrNotFound.
func (r *EventRepository) FindByID(ctx context.Context, id int64) (*model.Event, error) {
	row := r.db.QueryRow(ctx,
		eventColumns+` WHERE e.id = $1 GROUP BY e.id, u.id`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// FindAll returns every event ordered by date ascending, soonest first.
func (r *EventRepository) FindAll(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		eventColumns+` GROUP BY e.id, u.id ORDER BY e.date ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// AddAttendee inserts a user into the attendee set. Joining an event the
// user already attends is a no-op.
func (r *EventRepository) AddAttendee(ctx context.Context, eventID, userID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO event_attendees (event_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("add attendee: %w", err)
	}
	return nil
}

// RemoveAttendee deletes a user from the attendee set. Removing a user who
// never joined is a no-op.
func (r *EventRepository) RemoveAttendee(ctx context.Context, eventID, userID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM event_attendees WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove attendee: %w", err)
	}
	return nil
}

// scanEvent reads one joined event row.
func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date,
		&e.Creator.ID, &e.Creator.Email, &e.Creator.CreatedAt,
		&e.AttendeeIDs,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
