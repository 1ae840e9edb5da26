package persistence

import (
	"unsafe"

	"github.com/shanedertrain/watlow-controller/internal/sim/model"
)

const (
	totalSize = (model.MaxAddress + 1) * 2
)

// mapBytesToModel constructs a Model backed by the provided data slice.
// Warning: this casts the byte slice to a uint16 slice through unsafe
// pointers, so multi-byte values take the host's endianness. That gives
// zero-copy access but the file is not portable across architectures
// with different endianness.
func mapBytesToModel(data []byte) *model.Model {
	m := &model.Model{}
	m.HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), totalSize/2)
	return m
}
