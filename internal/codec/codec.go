// Package codec serializes events to and from the cache wire format: a flat
// JSON field map including the derived creator_name, which is not stored
// durably and is recomputed on every write.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventboard/internal/model"
)

// ErrDecode is returned when a cache entry cannot be decoded. Callers treat
// it the same as an unavailable cache and fall back to the database.
var ErrDecode = errors.New("malformed cache entry")

// dateLayout is the serialized form of the event date. RFC 3339 in UTC keeps
// entries sortable and round-trippable.
const dateLayout = time.RFC3339

// SerializedEvent is the cache representation of an event, stored as one
// field of the "events" hash.
type SerializedEvent struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	CreatorID   int64   `json:"creator_id"`
	AttendeeIDs []int64 `json:"attendee_ids"`
	CreatorName string  `json:"creator_name"`
}

// CreatorName derives the human-readable creator label from an email
// address: the local part before the "@".
func CreatorName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// Encode serializes an event for the cache, deriving creator_name from the
// creator's email.
func Encode(e model.Event, creatorEmail string) ([]byte, error) {
	attendees := e.AttendeeIDs
	if attendees == nil {
		attendees = []int64{}
	}
	s := SerializedEvent{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date.UTC().Format(dateLayout),
		CreatorID:   e.Creator.ID,
		AttendeeIDs: attendees,
		CreatorName: CreatorName(creatorEmail),
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", e.ID, err)
	}
	return raw, nil
}

// Decode parses a cache entry back into the listing shape. The joined flag
// is left false; it is viewer-specific and set by the caller.
func Decode(raw []byte) (model.AnnotatedEvent, error) {
	var s SerializedEvent
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.AnnotatedEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if s.ID <= 0 {
		return model.AnnotatedEvent{}, fmt.Errorf("%w: missing id", ErrDecode)
	}
	date, err := time.Parse(dateLayout, s.Date)
	if err != nil {
		return model.AnnotatedEvent{}, fmt.Errorf("%w: bad date %q", ErrDecode, s.Date)
	}
	attendees := s.AttendeeIDs
	if attendees == nil {
		attendees = []int64{}
	}
	return model.AnnotatedEvent{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Date:        date,
		CreatorID:   s.CreatorID,
		AttendeeIDs: attendees,
		CreatorName: s.CreatorName,
	}, nil
}
