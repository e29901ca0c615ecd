package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"wessbooks/pkg/auth"
	"wessbooks/pkg/domain"
	"wessbooks/pkg/store"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.Init(context.Background()))
	return NewManager(s, opts...), s
}

func TestManagerStartsAnonymous(t *testing.T) {
	m, _ := newTestManager(t)
	require.Equal(t, domain.SessionAnonymous, m.State())
	_, ok := m.Current()
	require.False(t, ok)
}

func TestRegisterDoesNotSignIn(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	user, err := m.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, fixed, user.CreatedAt)
	require.Equal(t, domain.SessionAnonymous, m.State())
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	cases := [][2]string{{"", "secret"}, {"alice", ""}, {"   ", "secret"}, {"alice", "\t"}}
	for _, c := range cases {
		_, err := m.Register(ctx, c[0], c[1])
		require.ErrorIs(t, err, ErrMissingFields, "register(%q, %q)", c[0], c[1])
	}
	_, ok, err := s.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	first, err := m.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = m.Register(ctx, "alice", "another")
	require.ErrorIs(t, err, ErrUsernameTaken)

	stored, ok, err := s.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, stored.ID)
	require.Equal(t, "secret", stored.Password)
}

func TestSignIn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	require.ErrorIs(t, m.SignIn(ctx, "alice", "wrong"), ErrInvalidCredentials)
	require.Equal(t, domain.SessionAnonymous, m.State())
	require.ErrorIs(t, m.SignIn(ctx, "bob", "secret"), ErrInvalidCredentials)
	require.ErrorIs(t, m.SignIn(ctx, "Alice", "secret"), ErrInvalidCredentials)
	require.Equal(t, domain.SessionAnonymous, m.State())

	require.NoError(t, m.SignIn(ctx, "alice", "secret"))
	require.Equal(t, domain.SessionAuthenticated, m.State())
	user, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, "alice", user.Username)

	m.SignOut()
	require.Equal(t, domain.SessionAnonymous, m.State())
	m.SignOut()
	require.Equal(t, domain.SessionAnonymous, m.State())
}

func TestSignInWithBcryptScheme(t *testing.T) {
	m, s := newTestManager(t, WithPasswordScheme(auth.Bcrypt{Cost: bcrypt.MinCost}))
	ctx := context.Background()
	_, err := m.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	stored, _, err := s.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotEqual(t, "secret", stored.Password)

	require.ErrorIs(t, m.SignIn(ctx, "alice", stored.Password), ErrInvalidCredentials)
	require.NoError(t, m.SignIn(ctx, "alice", "secret"))
}

func TestSignInSurfacesStoreErrors(t *testing.T) {
	m := NewManager(store.NewMemoryStore())
	err := m.SignIn(context.Background(), "alice", "secret")
	require.ErrorIs(t, err, store.ErrNotReady)
	require.Equal(t, domain.SessionAnonymous, m.State())
}

func TestScreenGate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.CanReach(domain.ScreenLogin))
	require.True(t, m.CanReach(domain.ScreenRegister))
	require.ErrorIs(t, m.Require(domain.ScreenCatalog), ErrNotSignedIn)
	require.ErrorIs(t, m.Require(domain.ScreenCart), ErrNotSignedIn)

	_, err := m.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, m.SignIn(ctx, "alice", "secret"))

	require.True(t, m.CanReach(domain.ScreenCatalog))
	require.True(t, m.CanReach(domain.ScreenCart))
	require.ErrorIs(t, m.Require(domain.ScreenLogin), ErrAlreadySignedIn)
	require.ErrorIs(t, m.Require(domain.ScreenRegister), ErrAlreadySignedIn)

	require.False(t, m.CanReach(domain.Screen("settings")))
}
