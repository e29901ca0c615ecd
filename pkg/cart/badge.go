package cart

import "sync"

// Badge holds the last computed cart total and fans it out to subscribers.
// Each subscriber channel has room for one value; a slow reader only ever
// sees the latest count.
type Badge struct {
	mu     sync.Mutex
	count  int
	subs   map[int]chan int
	nextID int
}

func newBadge() *Badge {
	return &Badge{subs: make(map[int]chan int)}
}

// Count returns the last published total without touching the store.
func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Subscribe returns a channel receiving each new count and a cancel func
// that drains and closes it.
func (b *Badge) Subscribe() (<-chan int, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan int, 1)
	b.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			select {
			case <-ch:
			default:
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Badge) publish(count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = count
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- count
	}
}
