// Package notify carries collection change signals between document store
// writers and live subscriptions.
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"crms/internal/ports"
)

// Memory is an in-process ChangeNotifier. Each watcher owns a one-slot
// buffer, so a burst of notifications collapses into a single pending signal
// and Notify never blocks on a slow reader.
type Memory struct {
	mu       sync.RWMutex
	watchers map[string]map[*memoryWatcher]struct{}
	closed   bool
}

var _ ports.ChangeNotifier = (*Memory)(nil)

type memoryWatcher struct {
	ch   chan struct{}
	once sync.Once
}

func (w *memoryWatcher) close() {
	w.once.Do(func() { close(w.ch) })
}

func NewMemory() *Memory {
	return &Memory{watchers: make(map[string]map[*memoryWatcher]struct{})}
}

func (m *Memory) Notify(ctx context.Context, collection string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return errors.New("collection is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for w := range m.watchers[collection] {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *Memory) Watch(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, nil, errors.New("collection is required")
	}

	w := &memoryWatcher{ch: make(chan struct{}, 1)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrClosed
	}
	set, ok := m.watchers[collection]
	if !ok {
		set = make(map[*memoryWatcher]struct{})
		m.watchers[collection] = set
	}
	set[w] = struct{}{}
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if set, ok := m.watchers[collection]; ok {
			delete(set, w)
			if len(set) == 0 {
				delete(m.watchers, collection)
			}
		}
		w.close()
	}
	return w.ch, stop, nil
}

// Close closes every open watch channel. Later calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, set := range m.watchers {
		for w := range set {
			w.close()
		}
	}
	m.watchers = make(map[string]map[*memoryWatcher]struct{})
	return nil
}
