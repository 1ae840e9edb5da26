// Package watlow is the domain-facing surface over the Modbus master:
// temperature, setpoint, PID parameter and profile operations expressed
// in physical units.
package watlow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shanedertrain/watlow-controller/internal/master"
	"github.com/shanedertrain/watlow-controller/internal/registers"
)

// Controller wraps a master with named operations. All methods are safe
// for concurrent use; the master serializes bus access underneath.
type Controller struct {
	m *master.Master
}

// New creates a Controller over a master.
func New(m *master.Master) *Controller {
	return &Controller{m: m}
}

// Read reads any logical register in physical units.
func (c *Controller) Read(ctx context.Context, name string) (float64, error) {
	return c.m.Read(ctx, name)
}

// Write writes any logical register from physical units.
func (c *Controller) Write(ctx context.Context, name string, value float64) error {
	return c.m.Write(ctx, name, value)
}

// ReadTemperature returns the input 1 process value in degrees.
func (c *Controller) ReadTemperature(ctx context.Context) (float64, error) {
	return c.m.Read(ctx, registers.ProcessValue)
}

// Setpoint returns the static setpoint 1 in degrees.
func (c *Controller) Setpoint(ctx context.Context) (float64, error) {
	return c.m.Read(ctx, registers.Setpoint)
}

// SetSetpoint writes the static setpoint 1 and commits the change to
// the controller's EEPROM.
func (c *Controller) SetSetpoint(ctx context.Context, degrees float64) error {
	if err := c.m.Write(ctx, registers.Setpoint, degrees); err != nil {
		return err
	}
	return c.Save(ctx)
}

// SetRampRate writes the ramp rate in degrees per minute.
func (c *Controller) SetRampRate(ctx context.Context, rate float64) error {
	return c.m.Write(ctx, registers.RampRate, rate)
}

// Save commits pending parameter changes to EEPROM. The F4 exposes this
// as a command register; writing zero triggers the save. On variants
// without the register this is a no-op mapping error surfaced to the
// caller.
func (c *Controller) Save(ctx context.Context) error {
	return c.m.Write(ctx, registers.SaveChanges, 0)
}

// PID unit modes. The controller reports SI (integral/derivative) or US
// (reset/rate) via the pid-units register; 1 means SI.
type PIDUnitsMode int

const (
	UnitsUS PIDUnitsMode = iota
	UnitsSI
)

func (m PIDUnitsMode) String() string {
	if m == UnitsSI {
		return "SI"
	}
	return "US"
}

// PIDUnits reads the controller's PID unit mode.
func (c *Controller) PIDUnits(ctx context.Context) (PIDUnitsMode, error) {
	v, err := c.m.Read(ctx, registers.PIDUnits)
	if err != nil {
		return UnitsUS, err
	}
	if v == 1 {
		return UnitsSI, nil
	}
	return UnitsUS, nil
}

// PIDParameters holds one PID set. Integral/Derivative apply in SI
// mode, Reset/Rate in US mode; the inactive pair is left zero.
type PIDParameters struct {
	ProportionalBand float64
	Integral         float64
	Derivative       float64
	Reset            float64
	Rate             float64
	DeadBand         float64
	Hysteresis       float64
}

// limits bounds a PID parameter to the range the controller manual
// documents for its Modbus value.
type limits struct {
	min, max float64
}

var (
	pbLimits         = limits{0, 30000}
	integralLimits   = limits{0, 300.00}
	derivativeLimits = limits{0, 9.99}
	resetLimits      = limits{0, 99.99}
	rateLimits       = limits{0, 9.99}
	deadBandLimits   = limits{0, 30000}
	hysteresisLimits = limits{1, 30000}
)

// clamp pins v into the documented range, logging when it had to.
func (s limits) clamp(name string, v float64) float64 {
	if v < s.min {
		slog.Warn("clamping PID parameter to engineering minimum", "param", name, "value", v, "min", s.min)
		return s.min
	}
	if v > s.max {
		slog.Warn("clamping PID parameter to engineering maximum", "param", name, "value", v, "max", s.max)
		return s.max
	}
	return v
}

// ReadPID reads one PID parameter set, choosing the integral/derivative
// or reset/rate pair by the controller's unit mode.
func (c *Controller) ReadPID(ctx context.Context, set int) (PIDParameters, error) {
	if set < 1 || set > registers.PIDSets {
		return PIDParameters{}, fmt.Errorf("pid set %d out of range 1-%d", set, registers.PIDSets)
	}

	var p PIDParameters
	var err error
	if p.ProportionalBand, err = c.m.Read(ctx, registers.PIDEntryName(set, "proportional-band")); err != nil {
		return PIDParameters{}, err
	}
	if p.DeadBand, err = c.m.Read(ctx, registers.PIDEntryName(set, "dead-band")); err != nil {
		return PIDParameters{}, err
	}
	if p.Hysteresis, err = c.m.Read(ctx, registers.PIDEntryName(set, "hysteresis")); err != nil {
		return PIDParameters{}, err
	}

	mode, err := c.PIDUnits(ctx)
	if err != nil {
		return PIDParameters{}, err
	}
	if mode == UnitsSI {
		if p.Integral, err = c.m.Read(ctx, registers.PIDEntryName(set, "integral")); err != nil {
			return PIDParameters{}, err
		}
		if p.Derivative, err = c.m.Read(ctx, registers.PIDEntryName(set, "derivative")); err != nil {
			return PIDParameters{}, err
		}
	} else {
		if p.Reset, err = c.m.Read(ctx, registers.PIDEntryName(set, "reset")); err != nil {
			return PIDParameters{}, err
		}
		if p.Rate, err = c.m.Read(ctx, registers.PIDEntryName(set, "rate")); err != nil {
			return PIDParameters{}, err
		}
	}

	return p, nil
}

// WritePID writes one PID parameter set, clamping each value to its
// engineering limits, then commits to EEPROM. Hysteresis only applies
// while the proportional band is zero, so it is skipped otherwise.
func (c *Controller) WritePID(ctx context.Context, set int, p PIDParameters) error {
	if set < 1 || set > registers.PIDSets {
		return fmt.Errorf("pid set %d out of range 1-%d", set, registers.PIDSets)
	}

	pb := pbLimits.clamp("proportional-band", p.ProportionalBand)
	if err := c.m.Write(ctx, registers.PIDEntryName(set, "proportional-band"), pb); err != nil {
		return err
	}

	mode, err := c.PIDUnits(ctx)
	if err != nil {
		return err
	}
	if mode == UnitsSI {
		if err := c.m.Write(ctx, registers.PIDEntryName(set, "integral"),
			integralLimits.clamp("integral", p.Integral)); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.PIDEntryName(set, "derivative"),
			derivativeLimits.clamp("derivative", p.Derivative)); err != nil {
			return err
		}
	} else {
		if err := c.m.Write(ctx, registers.PIDEntryName(set, "reset"),
			resetLimits.clamp("reset", p.Reset)); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.PIDEntryName(set, "rate"),
			rateLimits.clamp("rate", p.Rate)); err != nil {
			return err
		}
	}

	if err := c.m.Write(ctx, registers.PIDEntryName(set, "dead-band"),
		deadBandLimits.clamp("dead-band", p.DeadBand)); err != nil {
		return err
	}

	if pb == 0 {
		if err := c.m.Write(ctx, registers.PIDEntryName(set, "hysteresis"),
			hysteresisLimits.clamp("hysteresis", p.Hysteresis)); err != nil {
			return err
		}
	} else if p.Hysteresis != 0 {
		slog.Info("hysteresis not written, proportional band is non-zero", "set", set)
	}

	return c.Save(ctx)
}

// Profile edit actions (F4 profile-edit-action register).
const (
	editActionEditStep = 2
	editActionDelete   = 3
	editActionRun      = 5
)

// SelectProfile points subsequent profile operations at a profile slot.
func (c *Controller) SelectProfile(ctx context.Context, profile int) error {
	return c.m.Write(ctx, registers.ProfileNumber, float64(profile))
}

// SelectStep points subsequent step operations at a step of the
// selected profile.
func (c *Controller) SelectStep(ctx context.Context, step int) error {
	return c.m.Write(ctx, registers.ProfileStep, float64(step))
}

// RunProfile starts a stored ramp/soak profile from its first step.
func (c *Controller) RunProfile(ctx context.Context, profile int) error {
	if err := c.SelectProfile(ctx, profile); err != nil {
		return err
	}
	if err := c.SelectStep(ctx, 1); err != nil {
		return err
	}
	return c.m.Write(ctx, registers.ProfileEditAction, editActionRun)
}

// ClearProfile deletes a stored profile and commits the change.
func (c *Controller) ClearProfile(ctx context.Context, profile int) error {
	if err := c.SelectProfile(ctx, profile); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileEditAction, editActionDelete); err != nil {
		return err
	}
	return c.Save(ctx)
}
