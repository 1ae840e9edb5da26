// Package persistence stores the simulated controller's register space
// across restarts, like the EEPROM of a real controller.
package persistence

import (
	"github.com/shanedertrain/watlow-controller/internal/sim/model"
)

// Storage persists the simulated register space.
type Storage interface {
	// Load loads the register space from storage, creating an empty one
	// when nothing exists yet.
	Load() (*model.Model, error)

	// Save saves the current register space to storage.
	Save(m *model.Model) error

	// OnWrite is a hook called after registers are modified over the
	// bus. It lets a backend persist changes as they happen.
	OnWrite(address, quantity uint16)
}
