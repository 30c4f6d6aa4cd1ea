package capacity

import (
	"context"
	"fmt"
	"sync"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// MemoryStore is a process-local Store for single-instance deployments and
// tests. Each operation runs entirely under one mutex.
type MemoryStore struct {
	mu    sync.Mutex
	pools map[string]*Seats
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[string]*Seats)}
}

func (m *MemoryStore) Reserve(_ context.Context, workshopID string, count int) (Seats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[workshopID]
	if !ok {
		return Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
	}
	if p.BookedSeats+count > p.MaxSeats {
		return *p, fmt.Errorf("%w: %s", model.ErrSoldOut, workshopID)
	}
	p.BookedSeats += count
	return *p, nil
}

func (m *MemoryStore) Release(_ context.Context, workshopID string, count int) (Seats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[workshopID]
	if !ok {
		return Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
	}
	p.BookedSeats = max(p.BookedSeats-count, 0)
	return *p, nil
}

func (m *MemoryStore) Seats(_ context.Context, workshopID string) (Seats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[workshopID]
	if !ok {
		return Seats{}, fmt.Errorf("%w: %s", model.ErrWorkshopNotFound, workshopID)
	}
	return *p, nil
}

func (m *MemoryStore) Ensure(_ context.Context, workshopID string, maxSeats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[workshopID]; ok {
		p.MaxSeats = maxSeats
		return nil
	}
	m.pools[workshopID] = &Seats{WorkshopID: workshopID, MaxSeats: maxSeats}
	return nil
}
