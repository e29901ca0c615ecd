package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wessbooks/pkg/auth"
	"wessbooks/pkg/cart"
	"wessbooks/pkg/catalog"
	"wessbooks/pkg/domain"
	"wessbooks/pkg/session"
	"wessbooks/pkg/store"
)

// MemoryDatabaseURL selects the in-process store.
const MemoryDatabaseURL = "memory"

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	PasswordScheme string
	Logger         *slog.Logger
	Store          store.Store
	Catalog        *catalog.Catalog
}

// App is the navigation layer: every screen operation checks the session
// before reaching the cart or catalog.
type App struct {
	store    store.Store
	cart     *cart.Engine
	sessions *session.Manager
	catalog  *catalog.Catalog
	logger   *slog.Logger
}

// SessionView describes the current session for the presentation layer.
type SessionView struct {
	State    domain.SessionState `json:"state"`
	Username string              `json:"username,omitempty"`
}

// CatalogView is the catalog screen: the books and the header badge.
type CatalogView struct {
	Items     []domain.CatalogItem `json:"items"`
	CartCount int                  `json:"cartCount"`
}

// CartView is the cart screen.
type CartView struct {
	Lines []domain.CartLine `json:"lines"`
	Total int               `json:"total"`
}

// New constructs the application and initializes the store schema.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheme, err := auth.ParseScheme(cfg.PasswordScheme)
	if err != nil {
		return nil, err
	}
	if scheme.Name() == auth.SchemePlaintext {
		logger.Warn("passwords are stored in plaintext; set passwordScheme: bcrypt to hash them")
	}

	dataStore := cfg.Store
	if dataStore == nil {
		dsn := strings.TrimSpace(cfg.DatabaseURL)
		switch dsn {
		case "":
			return nil, fmt.Errorf("database URL required")
		case MemoryDatabaseURL:
			dataStore = store.NewMemoryStore()
		default:
			gormStore, err := store.NewGormStore(dsn, store.WithLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("init store: %w", err)
			}
			dataStore = gormStore
		}
	}
	if err := dataStore.Init(ctx); err != nil {
		_ = dataStore.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	books := cfg.Catalog
	if books == nil {
		books = catalog.Default()
	}

	sessions := session.NewManager(dataStore,
		session.WithLogger(logger),
		session.WithPasswordScheme(scheme),
	)
	a := &App{
		store:    dataStore,
		cart:     cart.NewEngine(dataStore, cart.WithLogger(logger)),
		sessions: sessions,
		catalog:  books,
		logger:   logger,
	}
	if _, err := a.cart.Refresh(ctx); err != nil {
		_ = dataStore.Close()
		return nil, fmt.Errorf("load cart count: %w", err)
	}
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Session returns the current session.
func (a *App) Session() SessionView {
	user, ok := a.sessions.Current()
	if !ok {
		return SessionView{State: domain.SessionAnonymous}
	}
	return SessionView{State: domain.SessionAuthenticated, Username: user.Username}
}

// SignIn is only available from the login screen.
func (a *App) SignIn(ctx context.Context, username, password string) (SessionView, error) {
	if err := a.sessions.Require(domain.ScreenLogin); err != nil {
		return SessionView{}, err
	}
	if err := a.sessions.SignIn(ctx, username, password); err != nil {
		return SessionView{}, err
	}
	return a.Session(), nil
}

// Register is only available from the register screen. It leaves the
// session anonymous; the caller navigates back to sign-in.
func (a *App) Register(ctx context.Context, username, password string) (domain.User, error) {
	if err := a.sessions.Require(domain.ScreenRegister); err != nil {
		return domain.User{}, err
	}
	return a.sessions.Register(ctx, username, password)
}

func (a *App) SignOut() {
	a.sessions.SignOut()
}

// Catalog renders the catalog screen and refreshes the badge, as a focus
// event would.
func (a *App) Catalog(ctx context.Context) (CatalogView, error) {
	if err := a.sessions.Require(domain.ScreenCatalog); err != nil {
		return CatalogView{}, err
	}
	count, err := a.cart.Refresh(ctx)
	if err != nil {
		return CatalogView{}, err
	}
	return CatalogView{Items: a.catalog.Items(), CartCount: count}, nil
}

// Cart renders the cart screen.
func (a *App) Cart(ctx context.Context) (CartView, error) {
	if err := a.sessions.Require(domain.ScreenCart); err != nil {
		return CartView{}, err
	}
	lines, err := a.cart.ListCart(ctx)
	if err != nil {
		return CartView{}, err
	}
	total, err := a.cart.Refresh(ctx)
	if err != nil {
		return CartView{}, err
	}
	return CartView{Lines: lines, Total: total}, nil
}

// CartCount recomputes the badge on a navigation-focus event.
func (a *App) CartCount(ctx context.Context) (int, error) {
	if err := a.sessions.Require(domain.ScreenCatalog); err != nil {
		return 0, err
	}
	return a.cart.Refresh(ctx)
}

// WaitCartCount blocks until the badge shows a count other than after, or
// until wait elapses. changed is false on timeout.
func (a *App) WaitCartCount(ctx context.Context, after int, wait time.Duration) (count int, changed bool, err error) {
	if err := a.sessions.Require(domain.ScreenCatalog); err != nil {
		return 0, false, err
	}
	badge := a.cart.Badge()
	updates, unsubscribe := badge.Subscribe()
	defer unsubscribe()
	if count := badge.Count(); count != after {
		return count, true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return badge.Count(), false, nil
		case count, ok := <-updates:
			if !ok {
				return badge.Count(), false, nil
			}
			if count != after {
				return count, true, nil
			}
		}
	}
}

// AddBook adds the catalog book with bookID to the cart.
func (a *App) AddBook(ctx context.Context, bookID int) (int, error) {
	if err := a.sessions.Require(domain.ScreenCatalog); err != nil {
		return 0, err
	}
	book, ok := a.catalog.ByID(bookID)
	if !ok {
		return 0, ErrUnknownBook
	}
	return a.cart.AddToCart(ctx, book.Title)
}

// AddTitle adds a line by title. Titles outside the catalog are accepted;
// the cart stores titles by value.
func (a *App) AddTitle(ctx context.Context, title string) (int, error) {
	if err := a.sessions.Require(domain.ScreenCatalog); err != nil {
		return 0, err
	}
	return a.cart.AddToCart(ctx, title)
}

func (a *App) SetQuantity(ctx context.Context, lineID int64, quantity int) (int, error) {
	if err := a.sessions.Require(domain.ScreenCart); err != nil {
		return 0, err
	}
	return a.cart.UpdateQuantity(ctx, lineID, quantity)
}

func (a *App) AdjustQuantity(ctx context.Context, lineID int64, delta int) (int, error) {
	if err := a.sessions.Require(domain.ScreenCart); err != nil {
		return 0, err
	}
	return a.cart.AdjustQuantity(ctx, lineID, delta)
}

func (a *App) RemoveLine(ctx context.Context, lineID int64) (int, error) {
	if err := a.sessions.Require(domain.ScreenCart); err != nil {
		return 0, err
	}
	return a.cart.DeleteLine(ctx, lineID)
}

// Checkout clears the cart.
func (a *App) Checkout(ctx context.Context) error {
	if err := a.sessions.Require(domain.ScreenCart); err != nil {
		return err
	}
	return a.cart.Checkout(ctx)
}
