// Package store persists the last opened browse state per asset type so a
// reopened modal can resume where the previous one was closed.
package store

import (
	"sync"

	"cms-browser/internal/provider"
)

// Store loads and saves the last opened state keyed by asset type name.
type Store interface {
	Load(assetType string) (provider.LastOpenedState, bool, error)
	Save(assetType string, state provider.LastOpenedState) error
}

// Memory is a process-local Store.
type Memory struct {
	mu     sync.RWMutex
	states map[string]provider.LastOpenedState
}

func NewMemory() *Memory {
	return &Memory{states: make(map[string]provider.LastOpenedState)}
}

func (m *Memory) Load(assetType string) (provider.LastOpenedState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[assetType]
	return st, ok, nil
}

func (m *Memory) Save(assetType string, state provider.LastOpenedState) error {
	cp := provider.LastOpenedState{HierarchyItems: append([]provider.Item(nil), state.HierarchyItems...)}
	if state.SelectedItem != nil {
		sel := *state.SelectedItem
		cp.SelectedItem = &sel
	}
	m.mu.Lock()
	m.states[assetType] = cp
	m.mu.Unlock()
	return nil
}
