package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shanedertrain/watlow-controller/internal/sim/model"

	_ "modernc.org/sqlite"
)

// SQLStorage persists registers to a SQLite database, one row per
// non-zero register. Suited to long-running bench simulators where the
// registers file should survive and stay inspectable with sqlite3.
type SQLStorage struct {
	dsn   string
	db    *sql.DB
	model *model.Model
}

// NewSQLStorage creates a new SQLStorage for the given database path.
func NewSQLStorage(dsn string) *SQLStorage {
	return &SQLStorage{
		dsn: dsn,
	}
}

// Load connects to the database and loads stored registers.
func (s *SQLStorage) Load() (*model.Model, error) {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := model.NewModel()
	s.model = m

	rows, err := db.Query("SELECT address, value FROM watlow_registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr, val int
		if err := rows.Scan(&addr, &val); err != nil {
			continue
		}
		// Hand-edited databases can hold rows no write path produces.
		if addr < 0 || addr > model.MaxAddress {
			continue
		}
		m.HoldingRegisters[addr] = uint16(val)
	}

	return m, rows.Err()
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS watlow_registers (
		address INTEGER PRIMARY KEY,
		value INTEGER
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save is a no-op: OnWrite keeps the database current register by
// register, so a full dump would be redundant.
func (s *SQLStorage) Save(m *model.Model) error {
	return nil
}

// OnWrite upserts the changed registers. Called after the model update,
// so the current values can be read back from it.
func (s *SQLStorage) OnWrite(address, quantity uint16) {
	if s.db == nil || s.model == nil {
		return
	}

	for i := 0; i < int(quantity); i++ {
		addr := int(address) + i
		val := int64(s.model.Get(uint16(addr)))

		query := "INSERT INTO watlow_registers (address, value) VALUES (?, ?) ON CONFLICT(address) DO UPDATE SET value=excluded.value"
		if _, err := s.db.Exec(query, addr, val); err != nil {
			slog.Error("Failed to persist register", "addr", addr, "err", err)
		}
	}
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
