package profile

import (
	"sync"

	"memflow/internal/domain"
)

// MemoryStore is a map-backed Store for hosts that load profiles at
// startup, and for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]domain.JobProfile
	serials map[string]domain.SerialProfile
	bridges map[string]domain.BridgeProfile
	powers  map[string]domain.PowerProfile
	regions map[string]domain.MemoryRegion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    map[string]domain.JobProfile{},
		serials: map[string]domain.SerialProfile{},
		bridges: map[string]domain.BridgeProfile{},
		powers:  map[string]domain.PowerProfile{},
		regions: map[string]domain.MemoryRegion{},
	}
}

func (m *MemoryStore) PutJob(p domain.JobProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[p.ID] = p
}

func (m *MemoryStore) PutSerial(p domain.SerialProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serials[p.ID] = p
}

func (m *MemoryStore) PutBridge(p domain.BridgeProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bridges[p.ID] = p
}

func (m *MemoryStore) PutPower(p domain.PowerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powers[p.ID] = p
}

func (m *MemoryStore) PutRegion(r domain.MemoryRegion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[r.ID] = r
}

func (m *MemoryStore) GetJob(id string) (domain.JobProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.jobs[id]
	if !ok {
		return domain.JobProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) GetSerial(id string) (domain.SerialProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.serials[id]
	if !ok {
		return domain.SerialProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) GetBridge(id string) (domain.BridgeProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.bridges[id]
	if !ok {
		return domain.BridgeProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) GetPower(id string) (domain.PowerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.powers[id]
	if !ok {
		return domain.PowerProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) GetRegion(id string) (domain.MemoryRegion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[id]
	if !ok {
		return domain.MemoryRegion{}, ErrNotFound
	}
	return r, nil
}
