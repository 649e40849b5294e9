package storage

import (
	"context"
	"sync"

	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// Memory is an in-process Store. Records are cloned on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]types.TraversalState
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]types.TraversalState)}
}

func (m *Memory) Get(_ context.Context, tabID string) (types.TraversalState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.TraversalState{}, false, ErrClosed
	}
	st, ok := m.data[StateKey(tabID)]
	if !ok {
		return types.TraversalState{}, false, nil
	}
	return st.Clone(), true, nil
}

func (m *Memory) Set(_ context.Context, tabID string, st types.TraversalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[StateKey(tabID)] = st.Clone()
	return nil
}

func (m *Memory) Remove(_ context.Context, tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, StateKey(tabID))
	return nil
}

func (m *Memory) List(_ context.Context) (map[string]types.TraversalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]types.TraversalState, len(m.data))
	for key, st := range m.data {
		if id, ok := TabIDFromKey(key); ok {
			out[id] = st.Clone()
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
