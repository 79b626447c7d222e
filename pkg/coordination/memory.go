package coordination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Memory is an in-process coordination backend implementing the same contract
// as etcd: linearizable create/delete, ephemeral paths scoped to a session,
// and prefix watches. It backs hermetic tests and single-process development
// mode. Sessions share one Memory the way etcd sessions share one cluster.
type Memory struct {
	mu        sync.RWMutex
	data      map[string][]byte
	ephemeral map[string]*MemorySession // ephemeral path → owning session
	watchers  map[int]*memWatcher
	nextWatch int
}

type memWatcher struct {
	prefix string
	ch     chan WatchEvent
	done   <-chan struct{}
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{
		data:      make(map[string][]byte),
		ephemeral: make(map[string]*MemorySession),
		watchers:  make(map[int]*memWatcher),
	}
}

// Dial returns a DialFunc producing sessions against this backend
func (m *Memory) Dial() DialFunc {
	return func(ctx context.Context) (Store, error) {
		return m.NewSession(), nil
	}
}

// NewSession opens a session. Ephemeral paths created through it are removed
// when the session closes, mirroring lease expiry.
func (m *Memory) NewSession() *MemorySession {
	return &MemorySession{backend: m}
}

// MemorySession implements Store against a shared Memory backend
type MemorySession struct {
	backend *Memory
	closed  atomic.Bool
}

func (s *MemorySession) Create(ctx context.Context, path string, value []byte) error {
	return s.create(ctx, path, value, false)
}

func (s *MemorySession) CreateEphemeral(ctx context.Context, path string, value []byte) error {
	return s.create(ctx, path, value, true)
}

func (s *MemorySession) create(ctx context.Context, path string, value []byte, ephemeral bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[path]; ok {
		return fmt.Errorf("create %s: %w", path, ErrExists)
	}
	m.data[path] = append([]byte(nil), value...)
	if ephemeral {
		m.ephemeral[path] = s
	}
	m.notifyLocked(WatchEvent{Type: EventPut, Path: path, Value: m.data[path]})
	return nil
}

func (s *MemorySession) Delete(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(path)
	return nil
}

func (s *MemorySession) DeleteSubtree(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(path)
	prefix := path + "/"
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			m.deleteLocked(key)
		}
	}
	return nil
}

func (s *MemorySession) Exists(ctx context.Context, path string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	m := s.backend
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.data[path]; ok {
		return true, nil
	}
	prefix := path + "/"
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemorySession) Get(ctx context.Context, path string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	m := s.backend
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return append([]byte(nil), value...), nil
}

func (s *MemorySession) Children(ctx context.Context, path string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	m := s.backend
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := path + "/"
	seen := make(map[string]struct{})
	var children []string
	for key := range m.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		children = append(children, name)
	}
	return children, nil
}

func (s *MemorySession) Watch(ctx context.Context, path string) (<-chan WatchEvent, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	m := s.backend
	m.mu.Lock()
	id := m.nextWatch
	m.nextWatch++
	w := &memWatcher{
		prefix: path + "/",
		ch:     make(chan WatchEvent, 128),
		done:   ctx.Done(),
	}
	m.watchers[id] = w
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}

// Close removes the session's ephemeral paths and marks it unusable
func (s *MemorySession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, owner := range m.ephemeral {
		if owner == s {
			m.deleteLocked(path)
		}
	}
	return nil
}

func (m *Memory) deleteLocked(path string) {
	if _, ok := m.data[path]; !ok {
		return
	}
	delete(m.data, path)
	delete(m.ephemeral, path)
	m.notifyLocked(WatchEvent{Type: EventDelete, Path: path})
}

func (m *Memory) notifyLocked(ev WatchEvent) {
	for _, w := range m.watchers {
		if !strings.HasPrefix(ev.Path, w.prefix) {
			continue
		}
		select {
		case <-w.done:
		case w.ch <- ev:
		default:
			// Watcher buffer full, event dropped; receivers reconcile by
			// listing on subscribe
		}
	}
}
