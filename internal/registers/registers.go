// Package registers maps logical controller parameters to Modbus
// register addresses and physical-unit scaling, keyed by controller
// variant. Tables are built once at package initialization and never
// mutated.
package registers

import (
	"fmt"
	"math"
)

// Variant selects which controller model's register table applies.
type Variant int

const (
	// F4 is the Watlow F4 ramp/soak controller.
	F4 Variant = iota
	// Series93 is the Watlow Series 93 limit controller.
	Series93
)

func (v Variant) String() string {
	switch v {
	case F4:
		return "F4"
	case Series93:
		return "93"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// ParseVariant maps a configuration string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "f4", "F4":
		return F4, nil
	case "93", "series93":
		return Series93, nil
	}
	return 0, fmt.Errorf("unknown controller variant %q", s)
}

// Entry describes one mapped register. Physical value = raw * Scale.
type Entry struct {
	Name     string
	Address  uint16
	Words    int // registers occupied, 1 or 2
	Scale    float64
	Signed   bool
	ReadOnly bool
}

// UnknownRegisterError is returned when a logical name has no mapping
// for the requested variant.
type UnknownRegisterError struct {
	Variant Variant
	Name    string
}

func (e *UnknownRegisterError) Error() string {
	return fmt.Sprintf("no register %q on variant %s", e.Name, e.Variant)
}

// OutOfRangeError is returned when a physical value does not fit the
// register's integer width after scaling.
type OutOfRangeError struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("value %g for %q outside representable range [%g, %g]", e.Value, e.Name, e.Min, e.Max)
}

// Resolve looks up a logical name in the variant's table. Dispatch is a
// table selection on the variant tag, nothing dynamic.
func Resolve(v Variant, name string) (Entry, error) {
	var table map[string]Entry
	switch v {
	case F4:
		table = f4Table
	case Series93:
		table = series93Table
	default:
		return Entry{}, &UnknownRegisterError{Variant: v, Name: name}
	}

	e, ok := table[name]
	if !ok {
		return Entry{}, &UnknownRegisterError{Variant: v, Name: name}
	}
	return e, nil
}

// ToPhysical converts a raw register value to physical units. For
// two-word registers raw holds the big-endian combination of both words.
func (e Entry) ToPhysical(raw uint32) float64 {
	if e.Signed {
		if e.Words == 2 {
			return float64(int32(raw)) * e.Scale
		}
		return float64(int16(raw)) * e.Scale
	}
	return float64(raw) * e.Scale
}

// ToRaw converts a physical value to register value(s), rounding to the
// nearest representable step. The inverse of ToPhysical within rounding
// tolerance.
func (e Entry) ToRaw(value float64) ([]uint16, error) {
	scaled := math.Round(value / e.Scale)

	var min, max float64
	switch {
	case e.Signed && e.Words == 2:
		min, max = math.MinInt32, math.MaxInt32
	case e.Signed:
		min, max = math.MinInt16, math.MaxInt16
	case e.Words == 2:
		min, max = 0, math.MaxUint32
	default:
		min, max = 0, math.MaxUint16
	}
	if scaled < min || scaled > max {
		return nil, &OutOfRangeError{Name: e.Name, Value: value, Min: min * e.Scale, Max: max * e.Scale}
	}

	raw := uint32(int64(scaled))
	if e.Words == 2 {
		return []uint16{uint16(raw >> 16), uint16(raw)}, nil
	}
	return []uint16{uint16(raw)}, nil
}
