package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ambulance-tracking/internal/models"
)

var ErrNotFound = errors.New("dispatch not found")

// DispatchStore defines persistence operations for dispatch records.
type DispatchStore interface {
	SaveDispatch(ctx context.Context, d *models.Dispatch) error
	UpdateDispatch(ctx context.Context, d *models.Dispatch) error
	GetDispatch(ctx context.Context, id string) (*models.Dispatch, error)
}

type MemoryStore struct {
	mu         sync.RWMutex
	dispatches map[string]models.Dispatch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dispatches: make(map[string]models.Dispatch)}
}

func (m *MemoryStore) SaveDispatch(_ context.Context, d *models.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches[d.ID] = *d
	return nil
}

func (m *MemoryStore) UpdateDispatch(_ context.Context, d *models.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dispatches[d.ID]; !ok {
		return ErrNotFound
	}
	m.dispatches[d.ID] = *d
	return nil
}

func (m *MemoryStore) GetDispatch(_ context.Context, id string) (*models.Dispatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dispatches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}
