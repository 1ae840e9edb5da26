package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shanedertrain/watlow-controller/internal/sim/model"
)

// FileStorage persists the register space to a flat file: 65536
// registers, host-endian, 131072 bytes total.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load loads the register space from the file, sizing it on first use.
func (ms *FileStorage) Load() (*model.Model, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	ms.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ms.data = data

	return mapBytesToModel(data), nil
}

// Save flushes the register space to disk.
func (ms *FileStorage) Save(m *model.Model) error {
	return ms.sync()
}

// OnWrite syncs after every bus write so a crash loses nothing.
func (ms *FileStorage) OnWrite(address, quantity uint16) {
	if err := ms.sync(); err != nil {
		slog.Error("Failed to sync file", "err", err)
	}
}

func (ms *FileStorage) sync() error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	if _, err := ms.file.WriteAt(ms.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	ms.file.Close()
	return nil
}
