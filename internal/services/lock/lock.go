// Package lock serializes work on a playlist or studio. Waiters are served in
// priority order, and in arrival order within one priority.
package lock

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// Priority orders waiters on the same key. Higher values are served first.
type Priority int

const (
	PriorityIngest Priority = iota
	PriorityUserIngest
	PriorityUserPlayout
)

func (p Priority) String() string {
	switch p {
	case PriorityIngest:
		return "ingest"
	case PriorityUserIngest:
		return "user_ingest"
	case PriorityUserPlayout:
		return "user_playout"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// PlaylistKey is the key for operations on one playlist.
func PlaylistKey(id string) string { return "playlist:" + id }

// StudioKey is the key for operations that must be exclusive per studio.
func StudioKey(id string) string { return "studio:" + id }

type waiter struct {
	priority Priority
	seq      uint64
	granted  chan struct{}
	index    int
}

type waitQueue []*waiter

func (q waitQueue) Len() int { return len(q) }
func (q waitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}
func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

type keyState struct {
	held    bool
	waiting waitQueue
}

// Manager hands out exclusive access per key.
type Manager struct {
	mu   sync.Mutex
	keys map[string]*keyState
	seq  uint64

	// OnWait, when set, is called with the time each acquisition waited.
	OnWait func(key string, priority Priority, wait time.Duration)
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{keys: make(map[string]*keyState)}
}

// Acquire blocks until key is held or ctx is done. The returned function
// releases the key and must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, key string, priority Priority) (func(), error) {
	start := time.Now()

	m.mu.Lock()
	st := m.keys[key]
	if st == nil {
		st = &keyState{}
		m.keys[key] = st
	}
	if !st.held {
		st.held = true
		m.mu.Unlock()
		m.observe(key, priority, start)
		return m.releaser(key), nil
	}
	m.seq++
	w := &waiter{priority: priority, seq: m.seq, granted: make(chan struct{})}
	heap.Push(&st.waiting, w)
	m.mu.Unlock()

	select {
	case <-w.granted:
		m.observe(key, priority, start)
		return m.releaser(key), nil
	case <-ctx.Done():
		m.mu.Lock()
		if w.index >= 0 {
			heap.Remove(&st.waiting, w.index)
			m.mu.Unlock()
			return nil, ctx.Err()
		}
		m.mu.Unlock()
		// granted while cancelling; hand the key on
		m.release(key)
		return nil, ctx.Err()
	}
}

func (m *Manager) observe(key string, priority Priority, start time.Time) {
	if m.OnWait != nil {
		m.OnWait(key, priority, time.Since(start))
	}
}

func (m *Manager) releaser(key string) func() {
	var once sync.Once
	return func() { once.Do(func() { m.release(key) }) }
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.keys[key]
	if st == nil || !st.held {
		panic("lock: release of unheld key " + key)
	}
	if st.waiting.Len() == 0 {
		delete(m.keys, key)
		return
	}
	next := heap.Pop(&st.waiting).(*waiter)
	close(next.granted)
}

// Run executes fn while holding every key. Keys are acquired in the order
// given and released in reverse. ctx only bounds the wait: once every key is
// held, fn runs on a context that is never cancelled, so an operation that
// has started always completes.
func (m *Manager) Run(ctx context.Context, priority Priority, fn func(ctx context.Context) error, keys ...string) error {
	releases := make([]func(), 0, len(keys))
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()
	for _, key := range keys {
		release, err := m.Acquire(ctx, key, priority)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		releases = append(releases, release)
	}
	return fn(context.WithoutCancel(ctx))
}
