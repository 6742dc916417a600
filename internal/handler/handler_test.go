package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"eventboard/internal/model"
	"eventboard/internal/repository"
	"eventboard/internal/service"
)

// ─── In-memory stores shared by the test server ───────────────────────────────

type memEventStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]model.Event
}

func (m *memEventStore) Insert(ctx context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.events[e.ID] = *e
	return nil
}

func (m *memEventStore) Update(ctx context.Context, e model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.events[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Title, stored.Description, stored.Date = e.Title, e.Description, e.Date
	m.events[e.ID] = stored
	return nil
}

func (m *memEventStore) FindByID(ctx context.Context, id int64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.AttendeeIDs = append([]int64(nil), e.AttendeeIDs...)
	return &e, nil
}

func (m *memEventStore) FindAll(ctx context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		e.AttendeeIDs = append([]int64(nil), e.AttendeeIDs...)
		out = append(out, e)
	}
	return out, nil
}

func (m *memEventStore) AddAttendee(ctx context.Context, eventID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, id := range e.AttendeeIDs {
		if id == userID {
			return nil
		}
	}
	e.AttendeeIDs = append(e.AttendeeIDs, userID)
	m.events[eventID] = e
	return nil
}

func (m *memEventStore) RemoveAttendee(ctx context.Context, eventID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	kept := []int64{}
	for _, id := range e.AttendeeIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	e.AttendeeIDs = kept
	m.events[eventID] = e
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
}

func (m *memCache) GetAll(ctx context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string][]byte, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *memCache) Put(ctx context.Context, eventID int64, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fmt.Sprintf("%d", eventID)] = value
	return nil
}

type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]model.User
}

func (m *memUserStore) Create(ctx context.Context, email, hash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, repository.ErrEmailTaken
	}
	m.nextID++
	u := model.User{ID: m.nextID, Email: email, PasswordHash: hash}
	m.users[email] = u
	return &u, nil
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *memUserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memSessionStore struct {
	mu     sync.Mutex
	users  *memUserStore
	tokens map[string]int64
}

func (m *memSessionStore) Create(ctx context.Context, token string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
	return nil
}

func (m *memSessionStore) FindUser(ctx context.Context, token string) (*model.User, error) {
	m.mu.Lock()
	userID, ok := m.tokens[token]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.users.GetByID(ctx, userID)
}

func (m *memSessionStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

// ─── Test server wiring ───────────────────────────────────────────────────────

type testServer struct {
	router *chi.Mux
	cache  *memCache
}

func newTestServer() *testServer {
	logger := zap.NewNop()
	users := &memUserStore{users: make(map[string]model.User)}
	sessions := &memSessionStore{users: users, tokens: make(map[string]int64)}
	kv := &memCache{entries: make(map[string][]byte)}
	events := &memEventStore{events: make(map[int64]model.Event)}

	eventSvc := service.NewEventService(events, kv, logger)
	authSvc := service.NewAuthService(users, sessions, logger)
	eventHandler := NewEventHandler(eventSvc)
	authHandler := NewAuthHandler(authSvc)

	r := chi.NewRouter()
	r.Post("/signup", authHandler.Signup)
	r.Post("/login", authHandler.Login)
	r.Post("/logout", authHandler.Logout)
	r.Route("/events", func(r chi.Router) {
		r.Use(RequireAuth(authSvc))
		r.Get("/all", eventHandler.ListAll)
		r.Post("/", eventHandler.Create)
		r.Get("/{id}", eventHandler.Get)
		r.Post("/{id}", eventHandler.Update)
		r.Post("/{id}/join", eventHandler.Join)
		r.Post("/{id}/withdraw", eventHandler.Withdraw)
	})

	return &testServer{router: r, cache: kv}
}

// do sends a JSON request, attaching the session cookie when given.
func (s *testServer) do(t *testing.T, method, path string, body any, session string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session})
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signup registers a user and returns the session token from the cookie.
func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/signup", model.SignupRequest{
		Email:    email,
		Password: "correct horse",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d, body %s", email, rec.Code, rec.Body)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	t.Fatalf("signup %s: no session cookie", email)
	return ""
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestEventRoutesRequireAuth(t *testing.T) {
	s := newTestServer()
	for _, path := range []string{"/events/all", "/events/1"} {
		rec := s.do(t, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without session: status %d, want 401", path, rec.Code)
		}
	}
	rec := s.do(t, http.MethodPost, "/events/", model.CreateEventRequest{Title: "t"}, "bogus-token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("create with bogus session: status %d, want 401", rec.Code)
	}
}

func TestCreateAndListFlow(t *testing.T) {
	s := newTestServer()
	session := s.signup(t, "mail@example.com")

	rec := s.do(t, http.MethodPost, "/events/", model.CreateEventRequest{
		Title:       "title",
		Description: "desc",
		Date:        "2020-07-30T19:30:00",
	}, session)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body)
	}
	var created model.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created event has no id")
	}

	rec = s.do(t, http.MethodGet, "/events/all", nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []model.AnnotatedEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(list) != 1 || list[0].CreatorName != "mail" || list[0].Joined {
		t.Errorf("listing = %+v", list)
	}

	// Join flips the viewer's flag.
	rec = s.do(t, http.MethodPost, fmt.Sprintf("/events/%d/join", created.ID), nil, session)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("join: status %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/events/all", nil, session)
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if !list[0].Joined {
		t.Error("joined = false after join")
	}
}

func TestUpdateByNonCreatorIsForbidden(t *testing.T) {
	s := newTestServer()
	creator := s.signup(t, "mail@example.com")
	other := s.signup(t, "other@example.com")

	rec := s.do(t, http.MethodPost, "/events/", model.CreateEventRequest{
		Title: "title", Date: "2020-07-30T19:30:00",
	}, creator)
	var created model.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	patch := model.UpdateEventRequest{Title: "edited", Date: "2020-07-30T19:30:00"}
	path := fmt.Sprintf("/events/%d", created.ID)

	if rec := s.do(t, http.MethodPost, path, patch, other); rec.Code != http.StatusForbidden {
		t.Errorf("non-creator update: status %d, want 403", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, path, nil, other); rec.Code != http.StatusForbidden {
		t.Errorf("non-creator get: status %d, want 403", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, path, patch, creator); rec.Code != http.StatusOK {
		t.Errorf("creator update: status %d, want 200", rec.Code)
	}
}

func TestUnknownEventIs404(t *testing.T) {
	s := newTestServer()
	session := s.signup(t, "mail@example.com")

	cases := []struct{ method, path string }{
		{http.MethodGet, "/events/999"},
		{http.MethodPost, "/events/999/join"},
		{http.MethodPost, "/events/999/withdraw"},
		{http.MethodGet, "/events/not-a-number"},
	}
	for _, c := range cases {
		rec := s.do(t, c.method, c.path, nil, session)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status %d, want 404", c.method, c.path, rec.Code)
		}
	}
}

func TestValidationErrorsAre400(t *testing.T) {
	s := newTestServer()
	session := s.signup(t, "mail@example.com")

	rec := s.do(t, http.MethodPost, "/events/", model.CreateEventRequest{
		Title: "", Date: "2020-07-30T19:30:00",
	}, session)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty title: status %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/events/", model.CreateEventRequest{
		Title: "ok", Date: "not a date",
	}, session)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status %d, want 400", rec.Code)
	}
}

func TestListingSurvivesCacheOutage(t *testing.T) {
	s := newTestServer()
	session := s.signup(t, "mail@example.com")

	rec := s.do(t, http.MethodPost, "/events/", model.CreateEventRequest{
		Title: "title", Date: "2020-07-30T19:30:00",
	}, session)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}

	s.cache.getErr = fmt.Errorf("connection refused")

	rec = s.do(t, http.MethodGet, "/events/all", nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("list with cache down: status %d", rec.Code)
	}
	var list []model.AnnotatedEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(list) != 1 || list[0].Title != "title" || list[0].CreatorName != "mail" {
		t.Errorf("fallback listing = %+v", list)
	}
}

func TestLoginAndLogout(t *testing.T) {
	s := newTestServer()
	s.signup(t, "mail@example.com")

	rec := s.do(t, http.MethodPost, "/login", model.LoginRequest{
		Email: "mail@example.com", Password: "wrong",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login: status %d, want 401", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/login", model.LoginRequest{
		Email: "mail@example.com", Password: "correct horse",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d", rec.Code)
	}
	var session string
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			session = c.Value
		}
	}
	if session == "" {
		t.Fatal("login did not set a session cookie")
	}

	if rec := s.do(t, http.MethodPost, "/logout", nil, session); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/events/all", nil, session); rec.Code != http.StatusUnauthorized {
		t.Errorf("listing after logout: status %d, want 401", rec.Code)
	}
}
