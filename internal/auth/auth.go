// Package auth implements user registration, login and bearer-token
// authentication.
//
// Passwords are hashed with bcrypt. Tokens are opaque random strings held in
// an in-memory token table; restarting the server invalidates all sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role determines what a user may do.
type Role string

const (
	RoleUser   Role = "USER"
	RoleLawyer Role = "LAWYER"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleLawyer, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("auth: unknown role %q", s)
	}
}

// User is a registered account. PasswordHash is never serialized to clients.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Verified  bool
	AvatarURL string

	PasswordHash []byte
	CreatedAt    time.Time
}

var (
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrWeakPassword       = errors.New("auth: password should be at least 6 characters")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
	ErrUserNotFound       = errors.New("auth: user not found")
)

// Store persists user accounts.
type Store interface {
	// CreateUser inserts a new user. Returns ErrEmailTaken when the email is
	// already registered.
	CreateUser(ctx context.Context, u *User) error

	// UserByEmail returns the user with the given email, or ErrUserNotFound.
	UserByEmail(ctx context.Context, email string) (*User, error)

	// UserByID returns the user with the given ID, or ErrUserNotFound.
	UserByID(ctx context.Context, id string) (*User, error)
}

// Service implements registration, login and token validation on top of a
// Store.
type Service struct {
	store Store

	mu     sync.Mutex
	tokens map[string]string // token -> user ID
}

// NewService creates an auth Service backed by store.
func NewService(store Store) *Service {
	return &Service{
		store:  store,
		tokens: make(map[string]string),
	}
}

// Register creates a new account and returns it along with a session token.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (*User, string, error) {
	if len(password) < 6 {
		return nil, "", ErrWeakPassword
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("auth: hash password: %w", err)
	}

	u := &User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		Role:         role,
		Verified:     true,
		AvatarURL:    avatarURL(name),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, "", err
	}

	token := s.issueToken(u.ID)
	return u, token, nil
}

// Login verifies credentials and returns the user with a fresh session token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("auth: login: %w", err)
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token := s.issueToken(u.ID)
	return u, token, nil
}

// Logout invalidates a session token. Unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	s.mu.Lock()
	userID, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidToken
	}

	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: authenticate: %w", err)
	}
	return u, nil
}

func (s *Service) issueToken(userID string) string {
	token := newID() + newID()
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
	return token
}

// avatarURL builds the default placeholder avatar for a new account.
func avatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=1e3a8a&color=fff"
}

// newID returns a 32-character random hex string.
func newID() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
