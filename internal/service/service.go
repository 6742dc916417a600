// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer. EventService is the heart
// of the system: every mutation writes to Postgres first and then mirrors
// the record into the cache, and every listing tries the cache before
// degrading to Postgres.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"eventboard/internal/cache"
	"eventboard/internal/codec"
	"eventboard/internal/metric"
	"eventboard/internal/model"
)

// ErrForbidden is returned when a user edits an event they did not create.
var ErrForbidden = errors.New("forbidden")

// ValidationError reports bad input on create or update.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// maxTitleLen bounds the event title, matching the events.title column.
const maxTitleLen = 256

// dateLayouts are the accepted request formats for event dates. The bare
// variant covers datetime-local form inputs that carry no zone.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

// EventStore is the durable system of record for events. Implementations
// return events with the creator eagerly joined.
type EventStore interface {
	Insert(ctx context.Context, e *model.Event) error
	Update(ctx context.Context, e model.Event) error
	FindByID(ctx context.Context, id int64) (*model.Event, error)
	FindAll(ctx context.Context) ([]model.Event, error)
	AddAttendee(ctx context.Context, eventID, userID int64) error
	RemoveAttendee(ctx context.Context, eventID, userID int64) error
}

// EventService orchestrates reads and writes across the durable store and
// the cache. The durable store is ground truth; the cache is a best-effort
// accelerator and every failure on its path is absorbed.
type EventService struct {
	store  EventStore
	cache  cache.Store
	logger *zap.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store EventStore, cacheStore cache.Store, logger *zap.Logger) *EventService {
	return &EventService{
		store:  store,
		cache:  cacheStore,
		logger: logger.Named("event_service"),
	}
}

// Create validates the request, persists a new event with the creator fixed
// to the requesting user, and mirrors it into the cache. Only the durable
// write can fail the operation.
func (s *EventService) Create(ctx context.Context, req model.CreateEventRequest, creatorID int64, creatorEmail string) (*model.Event, error) {
	title, date, err := validateEventFields(req.Title, req.Date)
	if err != nil {
		return nil, err
	}

	e := &model.Event{
		Title:       title,
		Description: req.Description,
		Date:        date,
		Creator:     model.User{ID: creatorID, Email: creatorEmail},
		AttendeeIDs: []int64{},
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.mirror(ctx, *e)
	return e, nil
}

// Get returns a single event for editing. Only the creator may open it.
func (s *EventService) Get(ctx context.Context, id, requestingUserID int64) (*model.Event, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Creator.ID != requestingUserID {
		return nil, ErrForbidden
	}
	return e, nil
}

// Update applies a patch to title, description, and date. Creator and
// attendees are untouched; only the creator may update.
func (s *EventService) Update(ctx context.Context, id int64, req model.UpdateEventRequest, requestingUserID int64) (*model.Event, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Creator.ID != requestingUserID {
		return nil, ErrForbidden
	}

	title, date, err := validateEventFields(req.Title, req.Date)
	if err != nil {
		return nil, err
	}
	e.Title = title
	e.Description = req.Description
	e.Date = date

	if err := s.store.Update(ctx, *e); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	s.mirror(ctx, *e)
	return e, nil
}

// Join adds the user to the event's attendee set. Joining twice is a no-op.
func (s *EventService) Join(ctx context.Context, eventID, userID int64) error {
	e, err := s.store.FindByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.store.AddAttendee(ctx, eventID, userID); err != nil {
		return fmt.Errorf("join event: %w", err)
	}
	if !containsID(e.AttendeeIDs, userID) {
		e.AttendeeIDs = append(e.AttendeeIDs, userID)
	}

	s.mirror(ctx, *e)
	return nil
}

// Withdraw removes the user from the event's attendee set. Withdrawing a
// user who never joined is a silent no-op.
func (s *EventService) Withdraw(ctx context.Context, eventID, userID int64) error {
	e, err := s.store.FindByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveAttendee(ctx, eventID, userID); err != nil {
		return fmt.Errorf("withdraw from event: %w", err)
	}
	e.AttendeeIDs = removeID(e.AttendeeIDs, userID)

	s.mirror(ctx, *e)
	return nil
}

// ListAll returns every event sorted by date ascending, annotated with the
// viewer's joined flag. It reads the cache first; any failure there, from a
// connection error to a single corrupt entry, degrades to a database query
// that produces the exact same shape. The cache is not repaired on fallback;
// the next write to an event refreshes its entry.
func (s *EventService) ListAll(ctx context.Context, viewerID int64) ([]model.AnnotatedEvent, error) {
	list, err := s.listFromCache(ctx, viewerID)
	if err == nil {
		metric.CacheHits.Inc()
		return list, nil
	}

	metric.CacheFallbacks.Inc()
	s.logger.Warn("cache read failed, falling back to database", zap.Error(err))

	events, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	list = make([]model.AnnotatedEvent, 0, len(events))
	for _, e := range events {
		attendees := e.AttendeeIDs
		if attendees == nil {
			attendees = []int64{}
		}
		list = append(list, model.AnnotatedEvent{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Date:        e.Date,
			CreatorID:   e.Creator.ID,
			AttendeeIDs: attendees,
			CreatorName: codec.CreatorName(e.Creator.Email),
			Joined:      containsID(attendees, viewerID),
		})
	}
	sortByDate(list)
	return list, nil
}

// listFromCache decodes the full cache hash. An empty hash is a valid empty
// listing; any error means the caller must fall back.
func (s *EventService) listFromCache(ctx context.Context, viewerID int64) ([]model.AnnotatedEvent, error) {
	entries, err := s.cache.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]model.AnnotatedEvent, 0, len(entries))
	for id, raw := range entries {
		ae, err := codec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", id, err)
		}
		ae.Joined = containsID(ae.AttendeeIDs, viewerID)
		list = append(list, ae)
	}
	sortByDate(list)
	return list, nil
}

// mirror writes the serialized event into the cache. Mirror failures never
// fail the surrounding mutation; they are counted and logged, and the entry
// heals on the next successful write.
func (s *EventService) mirror(ctx context.Context, e model.Event) {
	raw, err := codec.Encode(e, e.Creator.Email)
	if err != nil {
		metric.CacheWriteFailures.Inc()
		s.logger.Warn("cache mirror encode failed", zap.Int64("event_id", e.ID), zap.Error(err))
		return
	}
	if err := s.cache.Put(ctx, e.ID, raw); err != nil {
		metric.CacheWriteFailures.Inc()
		s.logger.Warn("cache mirror write failed", zap.Int64("event_id", e.ID), zap.Error(err))
	}
}

// validateEventFields checks the shared create/update constraints and parses
// the date.
func validateEventFields(title, date string) (string, time.Time, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", time.Time{}, &ValidationError{Msg: "title is required"}
	}
	if len([]rune(title)) > maxTitleLen {
		return "", time.Time{}, &ValidationError{Msg: fmt.Sprintf("title cannot exceed %d characters", maxTitleLen)}
	}
	parsed, err := parseDate(date)
	if err != nil {
		return "", time.Time{}, &ValidationError{Msg: "date must be a valid timestamp"}
	}
	return title, parsed, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

func sortByDate(list []model.AnnotatedEvent) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date.Equal(list[j].Date) {
			return list[i].ID < list[j].ID
		}
		return list[i].Date.Before(list[j].Date)
	})
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
