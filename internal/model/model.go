// Package model defines the core domain types for eventboard.
package model

import "time"

// User is a registered account. Events reference users both as creator and
// as attendees.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event is the durable representation of an event. The creator is eagerly
// joined on every read so the derived creator name can be rebuilt without an
// extra query.
type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Creator     User      `json:"creator"`
	AttendeeIDs []int64   `json:"attendee_ids"`
}

// AnnotatedEvent is the listing shape served to clients: an event enriched
// with the viewer-specific joined flag and the derived creator name. Both the
// cache path and the database fallback produce exactly this shape.
type AnnotatedEvent struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	CreatorID   int64     `json:"creator_id"`
	AttendeeIDs []int64   `json:"attendee_ids"`
	CreatorName string    `json:"creator_name"`
	Joined      bool      `json:"joined"`
}

// CreateEventRequest is the payload for creating an event. Date is accepted
// as RFC 3339 or as a bare local timestamp ("2006-01-02T15:04:05").
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// UpdateEventRequest is the payload for editing an event. Creator and
// attendees are never part of an update.
type UpdateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// SignupRequest is the payload for registering a new account.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for opening a session.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
