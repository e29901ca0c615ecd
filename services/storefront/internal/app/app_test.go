package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"wessbooks/pkg/cart"
	"wessbooks/pkg/domain"
	"wessbooks/pkg/session"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), Config{DatabaseURL: MemoryDatabaseURL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func signedIn(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()
	_, err := a.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = a.SignIn(ctx, "alice", "secret")
	require.NoError(t, err)
}

func TestNewRequiresDatabaseURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = New(context.Background(), Config{DatabaseURL: "memory", PasswordScheme: "rot13"})
	require.Error(t, err)
}

func TestAnonymousCannotReachCatalogOrCart(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.Catalog(ctx)
	require.ErrorIs(t, err, session.ErrNotSignedIn)
	_, err = a.Cart(ctx)
	require.ErrorIs(t, err, session.ErrNotSignedIn)
	_, err = a.AddBook(ctx, 1)
	require.ErrorIs(t, err, session.ErrNotSignedIn)
	_, err = a.CartCount(ctx)
	require.ErrorIs(t, err, session.ErrNotSignedIn)
	require.ErrorIs(t, a.Checkout(ctx), session.ErrNotSignedIn)
}

func TestSignedInCannotReachLoginOrRegister(t *testing.T) {
	a := newTestApp(t)
	signedIn(t, a)
	ctx := context.Background()

	_, err := a.SignIn(ctx, "alice", "secret")
	require.ErrorIs(t, err, session.ErrAlreadySignedIn)
	_, err = a.Register(ctx, "bob", "pw")
	require.ErrorIs(t, err, session.ErrAlreadySignedIn)

	a.SignOut()
	require.Equal(t, SessionView{State: domain.SessionAnonymous}, a.Session())
}

func TestRegisterThenSignIn(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	user, err := a.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, domain.SessionAnonymous, a.Session().State)

	_, err = a.Register(ctx, "alice", "secret")
	require.ErrorIs(t, err, session.ErrUsernameTaken)

	_, err = a.SignIn(ctx, "alice", "wrong")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)

	view, err := a.SignIn(ctx, "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, SessionView{State: domain.SessionAuthenticated, Username: "alice"}, view)
}

func TestShoppingFlow(t *testing.T) {
	a := newTestApp(t)
	signedIn(t, a)
	ctx := context.Background()

	view, err := a.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, view.Items, 4)
	require.Zero(t, view.CartCount)

	_, err = a.AddBook(ctx, 2)
	require.NoError(t, err)
	_, err = a.AddTitle(ctx, "Noli Me Tangere")
	require.NoError(t, err)
	total, err := a.AddBook(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, 3, a.cart.Badge().Count())

	_, err = a.AddBook(ctx, 42)
	require.ErrorIs(t, err, ErrUnknownBook)

	cartView, err := a.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, cartView.Lines, 2)
	require.Equal(t, 3, cartView.Total)

	noli := cartView.Lines[0]
	require.Equal(t, "Noli Me Tangere", noli.Title)
	total, err = a.AdjustQuantity(ctx, noli.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 4, total)
	total, err = a.SetQuantity(ctx, noli.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	total, err = a.RemoveLine(ctx, cartView.Lines[1].ID)
	require.NoError(t, err)
	require.Zero(t, total)

	require.ErrorIs(t, a.Checkout(ctx), cart.ErrCartEmpty)
	_, err = a.AddBook(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, a.Checkout(ctx))
	count, err := a.CartCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestWaitCartCount(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, _, err := a.WaitCartCount(ctx, 0, time.Millisecond)
	require.ErrorIs(t, err, session.ErrNotSignedIn)
	signedIn(t, a)

	count, changed, err := a.WaitCartCount(ctx, 0, 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, changed)
	require.Zero(t, count)

	count, changed, err = a.WaitCartCount(ctx, 5, time.Second)
	require.NoError(t, err)
	require.True(t, changed, "a stale count returns at once")
	require.Zero(t, count)

	added := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, err := a.AddBook(ctx, 1)
		added <- err
	}()
	count, changed, err = a.WaitCartCount(ctx, 0, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, <-added)
	require.True(t, changed)
	require.Equal(t, 1, count)
}

func TestCartSurvivesRestartButSessionDoesNot(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cart.db")

	first, err := New(ctx, Config{DatabaseURL: dsn})
	require.NoError(t, err)
	signedIn(t, first)
	_, err = first.AddBook(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, Config{DatabaseURL: dsn})
	require.NoError(t, err)
	defer second.Close()
	require.Equal(t, domain.SessionAnonymous, second.Session().State)
	require.Equal(t, 1, second.cart.Badge().Count())

	_, err = second.SignIn(ctx, "alice", "secret")
	require.NoError(t, err)
	view, err := second.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, "Florante at Laura", view.Lines[0].Title)
}
