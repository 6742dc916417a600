package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"eventboard/internal/model"
	"eventboard/internal/repository"
)

// ErrInvalidCredentials is returned on login with an unknown email or a
// wrong password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid email or password")

const minPasswordLen = 8

// UserStore is the durable store for accounts.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionStore persists opaque session tokens.
type SessionStore interface {
	Create(ctx context.Context, token string, userID int64) error
	FindUser(ctx context.Context, token string) (*model.User, error)
	Delete(ctx context.Context, token string) error
}

// AuthService handles sign-up, login, and session resolution.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	logger   *zap.Logger
}

// NewAuthService constructs an AuthService with its dependencies.
func NewAuthService(users UserStore, sessions SessionStore, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		logger:   logger.Named("auth_service"),
	}
}

// Signup registers a new account and opens a session for it.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (*model.User, string, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(email) {
		return nil, "", &ValidationError{Msg: "email is not a valid email address"}
	}
	if len(req.Password) < minPasswordLen {
		return nil, "", &ValidationError{Msg: fmt.Sprintf("password must be at least %d characters", minPasswordLen)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user signed up", zap.Int64("user_id", user.ID))
	return user, token, nil
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.User, string, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return user, token, nil
}

// Logout revokes a session token. Revoking an unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its account, or
// repository.ErrNotFound for unknown tokens.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	return s.sessions.FindUser(ctx, token)
}

func (s *AuthService) openSession(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.sessions.Create(ctx, token, userID); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	return token, nil
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	return len(local) > 0 && strings.Contains(domain, ".")
}
