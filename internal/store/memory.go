package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and by STORE_DRIVER=memory.
// Values are copied on the way in and out.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	// FailSet, when non-nil, is consulted before every Set; a non-nil
	// return aborts the write.  Tests use it to simulate storage failure.
	FailSet func(key string) error
}

func NewMemory() *Memory { return &Memory{data: make(map[string][]byte)} }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if m.FailSet != nil {
		if err := m.FailSet(key); err != nil {
			return wrap("set", key, err)
		}
	}
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}
