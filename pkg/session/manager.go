package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"wessbooks/pkg/auth"
	"wessbooks/pkg/domain"
	"wessbooks/pkg/store"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for session transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPasswordScheme replaces the default plaintext scheme.
func WithPasswordScheme(scheme auth.PasswordScheme) Option {
	return func(m *Manager) {
		if scheme != nil {
			m.passwords = scheme
		}
	}
}

// WithClock overrides the time source used for new users.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the process-scoped session. It starts Anonymous and is
// never persisted.
type Manager struct {
	users     store.Users
	passwords auth.PasswordScheme
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.RWMutex
	user *domain.User
}

// NewManager builds an anonymous session over users.
func NewManager(users store.Users, opts ...Option) *Manager {
	m := &Manager{
		users:     users,
		passwords: auth.Plaintext{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// SignIn authenticates username. Unknown users and wrong passwords both
// yield ErrInvalidCredentials and leave the session unchanged.
func (m *Manager) SignIn(ctx context.Context, username, password string) error {
	user, ok, err := m.users.FindUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !m.passwords.Check(password, user.Password) {
		m.logger.Info("sign in rejected")
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	m.user = &user
	m.mu.Unlock()
	m.logger.Info("signed in", "user_id", user.ID)
	return nil
}

// Register stores a new user. It does not sign the user in.
func (m *Manager) Register(ctx context.Context, username, password string) (domain.User, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, ErrMissingFields
	}
	stored, err := m.passwords.Hash(password)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Password:  stored,
		CreatedAt: m.now().UTC(),
	}
	if err := m.users.InsertUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	m.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// SignOut discards the session.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil {
		m.logger.Info("signed out", "user_id", m.user.ID)
	}
	m.user = nil
}

// State reports whether a user is signed in.
func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return domain.SessionAnonymous
	}
	return domain.SessionAuthenticated
}

// Current returns the signed-in user.
func (m *Manager) Current() (domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return domain.User{}, false
	}
	return *m.user, true
}

// CanReach reports whether screen is open in the current state.
func (m *Manager) CanReach(screen domain.Screen) bool {
	return m.Require(screen) == nil
}

// Require returns ErrNotSignedIn for catalog and cart screens while
// anonymous, and ErrAlreadySignedIn for login and register screens while
// authenticated.
func (m *Manager) Require(screen domain.Screen) error {
	signedIn := m.State() == domain.SessionAuthenticated
	switch screen {
	case domain.ScreenLogin, domain.ScreenRegister:
		if signedIn {
			return ErrAlreadySignedIn
		}
	case domain.ScreenCatalog, domain.ScreenCart:
		if !signedIn {
			return ErrNotSignedIn
		}
	default:
		return fmt.Errorf("unknown screen %q", screen)
	}
	return nil
}
