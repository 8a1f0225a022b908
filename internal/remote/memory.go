package remote

import (
	"context"
	"sync"
)

// Memory implements Store in process memory. It is used by tests; the
// FailGet/FailSet/FailRemove hooks inject per-key failures so retry and
// partial-load behavior can be exercised deterministically.
type Memory struct {
	FailGet    func(key string) error
	FailSet    func(key string) error
	FailRemove func(key string) error

	mu   sync.Mutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if m.FailGet != nil {
		if err := m.FailGet(key); err != nil {
			return "", false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if m.FailSet != nil {
		if err := m.FailSet(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	if m.FailRemove != nil {
		if err := m.FailRemove(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Snapshot returns a copy of the current contents.
func (m *Memory) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}
