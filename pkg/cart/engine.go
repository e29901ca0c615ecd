package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"wessbooks/pkg/domain"
	"wessbooks/pkg/store"
)

// Store is the persistence the engine needs.
type Store interface {
	store.CartLines
	WithinTx(ctx context.Context, fn func(store.Tx) error) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for cart events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine applies cart operations to the store and keeps the badge in step
// with the persisted total.
type Engine struct {
	store  Store
	badge  *Badge
	logger *slog.Logger

	// mu orders each write with the badge publish that follows it.
	mu sync.Mutex
}

// NewEngine builds an engine over s.
func NewEngine(s Store, opts ...Option) *Engine {
	e := &Engine{store: s, badge: newBadge(), logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Badge exposes the cart-count indicator.
func (e *Engine) Badge() *Badge {
	return e.badge
}

// AddToCart increments the line for title, creating it with quantity 1 when
// absent, and returns the new total.
func (e *Engine) AddToCart(ctx context.Context, title string) (int, error) {
	if strings.TrimSpace(title) == "" {
		return 0, ErrTitleRequired
	}
	total, err := e.write(ctx, func() error {
		return e.store.WithinTx(ctx, func(tx store.Tx) error {
			line, ok, err := tx.FindLineByTitle(ctx, title)
			if err != nil {
				return fmt.Errorf("find line: %w", err)
			}
			if !ok {
				if _, err := tx.InsertLine(ctx, title, 1); err != nil {
					return fmt.Errorf("insert line: %w", err)
				}
				return nil
			}
			next, err := addQuantity(line.Quantity, 1)
			if err != nil {
				return err
			}
			if err := tx.UpdateLineQuantity(ctx, line.ID, next); err != nil {
				return fmt.Errorf("update line: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	e.logger.Debug("cart line added", "title", title)
	return total, nil
}

// UpdateQuantity sets the quantity of line id. A quantity of zero or less
// removes the line.
func (e *Engine) UpdateQuantity(ctx context.Context, id int64, quantity int) (int, error) {
	return e.write(ctx, func() error {
		if quantity <= 0 {
			return e.deleteLine(ctx, id)
		}
		if err := e.store.UpdateLineQuantity(ctx, id, quantity); err != nil {
			return fmt.Errorf("update line: %w", err)
		}
		return nil
	})
}

// AdjustQuantity adds delta to the quantity of line id, removing the line
// when the result drops to zero or below. A missing line is left alone.
// An increase past the largest int fails with ErrQuantityTooLarge.
func (e *Engine) AdjustQuantity(ctx context.Context, id int64, delta int) (int, error) {
	return e.write(ctx, func() error {
		return e.store.WithinTx(ctx, func(tx store.Tx) error {
			lines, err := tx.ListLines(ctx)
			if err != nil {
				return fmt.Errorf("list lines: %w", err)
			}
			for _, line := range lines {
				if line.ID != id {
					continue
				}
				next, err := addQuantity(line.Quantity, delta)
				if err != nil {
					return err
				}
				if next <= 0 {
					if err := tx.DeleteLine(ctx, id); err != nil {
						return fmt.Errorf("delete line: %w", err)
					}
					return nil
				}
				if err := tx.UpdateLineQuantity(ctx, id, next); err != nil {
					return fmt.Errorf("update line: %w", err)
				}
				return nil
			}
			return nil
		})
	})
}

// DeleteLine removes line id. Removing a missing line succeeds.
func (e *Engine) DeleteLine(ctx context.Context, id int64) (int, error) {
	return e.write(ctx, func() error {
		return e.deleteLine(ctx, id)
	})
}

func (e *Engine) deleteLine(ctx context.Context, id int64) error {
	if err := e.store.DeleteLine(ctx, id); err != nil {
		return fmt.Errorf("delete line: %w", err)
	}
	return nil
}

// ListCart returns the lines in insertion order.
func (e *Engine) ListCart(ctx context.Context) ([]domain.CartLine, error) {
	lines, err := e.store.ListLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return lines, nil
}

// TotalQuantity sums the quantity of every line.
func (e *Engine) TotalQuantity(ctx context.Context) (int, error) {
	total, err := e.store.SumQuantity(ctx)
	if err != nil {
		return 0, fmt.Errorf("sum quantity: %w", err)
	}
	return total, nil
}

// Checkout clears the cart. It fails with ErrCartEmpty when there is
// nothing to buy. No order is recorded.
func (e *Engine) Checkout(ctx context.Context) error {
	var cleared int64
	_, err := e.write(ctx, func() error {
		return e.store.WithinTx(ctx, func(tx store.Tx) error {
			count, err := tx.CountLines(ctx)
			if err != nil {
				return fmt.Errorf("count lines: %w", err)
			}
			if count == 0 {
				return ErrCartEmpty
			}
			cleared, err = tx.DeleteAllLines(ctx)
			if err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	e.logger.Info("checkout completed", "lines", cleared)
	return nil
}

// Refresh recomputes the total from the store and publishes it to the badge.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refresh(ctx)
}

// write applies fn and publishes the resulting total before another write
// can start.
func (e *Engine) write(ctx context.Context, fn func() error) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(); err != nil {
		return 0, err
	}
	return e.refresh(ctx)
}

func (e *Engine) refresh(ctx context.Context) (int, error) {
	total, err := e.TotalQuantity(ctx)
	if err != nil {
		return 0, err
	}
	e.badge.publish(total)
	return total, nil
}

func addQuantity(quantity, delta int) (int, error) {
	next := quantity + delta
	if delta > 0 && next < quantity {
		return 0, ErrQuantityTooLarge
	}
	return next, nil
}
