package persistence

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shanedertrain/watlow-controller/internal/sim/model"
)

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.bin")

	ms := NewFileStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.HoldingRegisters[300] = 1005
	ms.OnWrite(300, 1)
	ms.Close()

	ms = NewFileStorage(path)
	m, err = ms.Load()
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	defer ms.Close()
	if m.HoldingRegisters[300] != 1005 {
		t.Errorf("register 300 = %d after reload, want 1005", m.HoldingRegisters[300])
	}
}

func TestMmapStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.mmap")

	ms := NewMmapStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.HoldingRegisters[300] = 1005
	ms.OnWrite(300, 1)
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ms = NewMmapStorage(path)
	m, err = ms.Load()
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	defer ms.Close()
	if m.HoldingRegisters[300] != 1005 {
		t.Errorf("register 300 = %d after reload, want 1005", m.HoldingRegisters[300])
	}
}

func TestSQLStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.db")

	ms := NewSQLStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.Set(300, 1005)
	m.Set(500, 25)
	ms.OnWrite(300, 1)
	ms.OnWrite(500, 1)
	ms.Close()

	ms = NewSQLStorage(path)
	m, err = ms.Load()
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	defer ms.Close()
	if m.Get(300) != 1005 {
		t.Errorf("register 300 = %d after reload, want 1005", m.Get(300))
	}
	if m.Get(500) != 25 {
		t.Errorf("register 500 = %d after reload, want 25", m.Get(500))
	}
}

// Rows a human slipped into the database by hand can fall outside the
// register space; Load must skip them instead of panicking.
func TestSQLStorageSkipsOutOfRangeRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.db")

	ms := NewSQLStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.Set(300, 1005)
	ms.OnWrite(300, 1)
	ms.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO watlow_registers (address, value) VALUES (-5, 42)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO watlow_registers (address, value) VALUES (?, 42)", model.MaxAddress+1); err != nil {
		t.Fatal(err)
	}
	db.Close()

	ms = NewSQLStorage(path)
	m, err = ms.Load()
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	defer ms.Close()
	if m.Get(300) != 1005 {
		t.Errorf("register 300 = %d after reload, want 1005", m.Get(300))
	}
}

// BenchmarkMemoryStorage_OnWrite benchmarks the OnWrite hook for MemoryStorage.
func BenchmarkMemoryStorage_OnWrite(b *testing.B) {
	ms := NewMemoryStorage()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms.OnWrite(300, 1)
	}
}

func BenchmarkFileStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_file.bin")
	ms := NewFileStorage(path)
	m, err := ms.Load()
	if err != nil {
		b.Fatalf("Failed to load file storage: %v", err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.HoldingRegisters[300] = uint16(i)
		ms.OnWrite(300, 1)
	}
}

// BenchmarkMmapStorage_OnWrite benchmarks the OnWrite hook for MmapStorage (msync).
func BenchmarkMmapStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_mmap.bin")
	ms := NewMmapStorage(path)

	m, err := ms.Load()
	if err != nil {
		b.Fatalf("Failed to load mmap storage: %v", err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.HoldingRegisters[300] = uint16(i)
		ms.OnWrite(300, 1)
	}
}

func BenchmarkSQLStorage_OnWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench_sql.db")
	ms := NewSQLStorage(path)
	m, err := ms.Load()
	if err != nil {
		b.Fatalf("Failed to load sql storage: %v", err)
	}
	defer ms.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Set(300, uint16(i))
		ms.OnWrite(300, 1)
	}
}

// BenchmarkModel_Write benchmarks the pure in-memory write (baseline).
func BenchmarkModel_Write(b *testing.B) {
	m := model.NewModel()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.HoldingRegisters[300] = uint16(i)
	}
}
