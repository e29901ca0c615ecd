package store

import (
	"context"
	"sync"

	"wessbooks/pkg/domain"
)

// MemoryStore keeps the cart and users in-process. It honors the same
// contract as GormStore and is used by tests and the "memory" database URL.
type MemoryStore struct {
	mu    sync.Mutex
	ready bool
	state memoryState
}

// memoryState is the unlocked data set; callers must hold MemoryStore.mu.
type memoryState struct {
	nextID int64
	lines  map[int64]domain.CartLine
	order  []int64
	users  map[string]domain.User // key: username
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			lines: make(map[int64]domain.CartLine),
			users: make(map[string]domain.User),
		},
	}
}

// Init marks the store ready. Existing data is kept.
func (m *MemoryStore) Init(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = true
	return nil
}

// WithinTx runs fn while holding the store lock. Changes made by fn are
// discarded when it returns an error.
func (m *MemoryStore) WithinTx(_ context.Context, fn func(Tx) error) error {
	return m.do(func(s *memoryState) error {
		snapshot := s.clone()
		if err := fn(s); err != nil {
			*s = snapshot
			return err
		}
		return nil
	})
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) do(fn func(*memoryState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotReady
	}
	return fn(&m.state)
}

func (m *MemoryStore) FindLineByTitle(ctx context.Context, title string) (line domain.CartLine, ok bool, err error) {
	err = m.do(func(s *memoryState) error {
		line, ok, err = s.FindLineByTitle(ctx, title)
		return err
	})
	return line, ok, err
}

func (m *MemoryStore) InsertLine(ctx context.Context, title string, quantity int) (line domain.CartLine, err error) {
	err = m.do(func(s *memoryState) error {
		line, err = s.InsertLine(ctx, title, quantity)
		return err
	})
	return line, err
}

func (m *MemoryStore) UpdateLineQuantity(ctx context.Context, id int64, quantity int) error {
	return m.do(func(s *memoryState) error { return s.UpdateLineQuantity(ctx, id, quantity) })
}

func (m *MemoryStore) DeleteLine(ctx context.Context, id int64) error {
	return m.do(func(s *memoryState) error { return s.DeleteLine(ctx, id) })
}

func (m *MemoryStore) DeleteAllLines(ctx context.Context) (n int64, err error) {
	err = m.do(func(s *memoryState) error {
		n, err = s.DeleteAllLines(ctx)
		return err
	})
	return n, err
}

func (m *MemoryStore) ListLines(ctx context.Context) (lines []domain.CartLine, err error) {
	err = m.do(func(s *memoryState) error {
		lines, err = s.ListLines(ctx)
		return err
	})
	return lines, err
}

func (m *MemoryStore) SumQuantity(ctx context.Context) (total int, err error) {
	err = m.do(func(s *memoryState) error {
		total, err = s.SumQuantity(ctx)
		return err
	})
	return total, err
}

func (m *MemoryStore) CountLines(ctx context.Context) (count int, err error) {
	err = m.do(func(s *memoryState) error {
		count, err = s.CountLines(ctx)
		return err
	})
	return count, err
}

func (m *MemoryStore) InsertUser(ctx context.Context, u domain.User) error {
	return m.do(func(s *memoryState) error { return s.InsertUser(ctx, u) })
}

func (m *MemoryStore) FindUserByUsername(ctx context.Context, username string) (user domain.User, ok bool, err error) {
	err = m.do(func(s *memoryState) error {
		user, ok, err = s.FindUserByUsername(ctx, username)
		return err
	})
	return user, ok, err
}

func (s *memoryState) clone() memoryState {
	out := memoryState{
		nextID: s.nextID,
		lines:  make(map[int64]domain.CartLine, len(s.lines)),
		order:  append([]int64(nil), s.order...),
		users:  make(map[string]domain.User, len(s.users)),
	}
	for id, line := range s.lines {
		out.lines[id] = line
	}
	for name, u := range s.users {
		out.users[name] = u
	}
	return out
}

func (s *memoryState) FindLineByTitle(_ context.Context, title string) (domain.CartLine, bool, error) {
	for _, id := range s.order {
		if line := s.lines[id]; line.Title == title {
			return line, true, nil
		}
	}
	return domain.CartLine{}, false, nil
}

func (s *memoryState) InsertLine(_ context.Context, title string, quantity int) (domain.CartLine, error) {
	if quantity < 1 {
		return domain.CartLine{}, ErrInvalidQuantity
	}
	s.nextID++
	line := domain.CartLine{ID: s.nextID, Title: title, Quantity: quantity}
	s.lines[line.ID] = line
	s.order = append(s.order, line.ID)
	return line, nil
}

func (s *memoryState) UpdateLineQuantity(_ context.Context, id int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	line, ok := s.lines[id]
	if !ok {
		return nil
	}
	line.Quantity = quantity
	s.lines[id] = line
	return nil
}

func (s *memoryState) DeleteLine(_ context.Context, id int64) error {
	if _, ok := s.lines[id]; !ok {
		return nil
	}
	delete(s.lines, id)
	filtered := s.order[:0]
	for _, item := range s.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	s.order = filtered
	return nil
}

func (s *memoryState) DeleteAllLines(_ context.Context) (int64, error) {
	n := int64(len(s.lines))
	s.lines = make(map[int64]domain.CartLine)
	s.order = nil
	return n, nil
}

func (s *memoryState) ListLines(_ context.Context) ([]domain.CartLine, error) {
	res := make([]domain.CartLine, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.lines[id])
	}
	return res, nil
}

func (s *memoryState) SumQuantity(_ context.Context) (int, error) {
	total := 0
	for _, line := range s.lines {
		total += line.Quantity
	}
	return total, nil
}

func (s *memoryState) CountLines(_ context.Context) (int, error) {
	return len(s.lines), nil
}

func (s *memoryState) InsertUser(_ context.Context, u domain.User) error {
	if _, exists := s.users[u.Username]; exists {
		return ErrUsernameTaken
	}
	s.users[u.Username] = u
	return nil
}

func (s *memoryState) FindUserByUsername(_ context.Context, username string) (domain.User, bool, error) {
	u, ok := s.users[username]
	return u, ok, nil
}
