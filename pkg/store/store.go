package store

import (
	"context"
	"errors"

	"wessbooks/pkg/domain"
)

var (
	// ErrNotReady is returned by every operation issued before Init completed.
	ErrNotReady = errors.New("store not ready")
	// ErrUsernameTaken reports a uniqueness violation on users.username.
	ErrUsernameTaken = errors.New("username taken")
	// ErrInvalidQuantity rejects writes that would persist a line below quantity 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// CartLines holds the primitive operations on the cart table.
type CartLines interface {
	FindLineByTitle(ctx context.Context, title string) (domain.CartLine, bool, error)
	InsertLine(ctx context.Context, title string, quantity int) (domain.CartLine, error)
	UpdateLineQuantity(ctx context.Context, id int64, quantity int) error
	DeleteLine(ctx context.Context, id int64) error
	DeleteAllLines(ctx context.Context) (int64, error)
	ListLines(ctx context.Context) ([]domain.CartLine, error)
	SumQuantity(ctx context.Context) (int, error)
	CountLines(ctx context.Context) (int, error)
}

// Users holds the primitive operations on the users table.
type Users interface {
	InsertUser(ctx context.Context, u domain.User) error
	FindUserByUsername(ctx context.Context, username string) (domain.User, bool, error)
}

// Tx is the view of the store handed to a unit of work.
type Tx interface {
	CartLines
	Users
}

// Store defines persistence for cart lines and user credentials.
type Store interface {
	Tx
	// Init creates the schema. It is safe to call on every start.
	Init(ctx context.Context) error
	// WithinTx runs fn as a single unit of work.
	WithinTx(ctx context.Context, fn func(Tx) error) error
	Close() error
}
