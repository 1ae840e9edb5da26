package persistence

import "github.com/shanedertrain/watlow-controller/internal/sim/model"

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*model.Model, error) {
	return model.NewModel(), nil
}

func (ms *MemoryStorage) Save(m *model.Model) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(address, quantity uint16) {
	// No-op
}
