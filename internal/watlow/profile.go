package watlow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/shanedertrain/watlow-controller/internal/registers"
)

// StepType identifies a ramp/soak profile step. The values are the
// codes the F4 profile-step-type register takes.
type StepType int

const (
	StepAutostart StepType = iota
	StepRampTime
	StepRampRate
	StepSoak
	StepJump
	StepEnd
)

var stepTypeNames = map[string]StepType{
	"autostart": StepAutostart,
	"ramp-time": StepRampTime,
	"ramp-rate": StepRampRate,
	"soak":      StepSoak,
	"jump":      StepJump,
	"end":       StepEnd,
}

func (t StepType) String() string {
	for name, v := range stepTypeNames {
		if v == t {
			return name
		}
	}
	return fmt.Sprintf("step-type-%d", int(t))
}

func (t *StepType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, ok := stepTypeNames[s]
	if !ok {
		return fmt.Errorf("unknown step type %q", s)
	}
	*t = v
	return nil
}

// EndAction is what the controller does when a profile's end step runs.
type EndAction int

const (
	EndHold EndAction = iota
	EndControlOff
	EndAllOff
	EndIdle
)

var endActionNames = map[string]EndAction{
	"hold":        EndHold,
	"control-off": EndControlOff,
	"all-off":     EndAllOff,
	"idle":        EndIdle,
}

func (a *EndAction) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, ok := endActionNames[s]
	if !ok {
		return fmt.Errorf("unknown end action %q", s)
	}
	*a = v
	return nil
}

// Duration accepts Go duration strings ("1h30m") in program files.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Step is one profile step. Which fields apply depends on Type; the
// rest are ignored when the step is written to the controller.
type Step struct {
	Type StepType `yaml:"type"`

	WaitFor         bool     `yaml:"wait-for"`
	EventOutputs    []bool   `yaml:"event-outputs"`
	Duration        Duration `yaml:"duration"`
	Rate            float64  `yaml:"rate"`
	Ch1Setpoint     float64  `yaml:"ch1-setpoint"`
	Ch2Setpoint     float64  `yaml:"ch2-setpoint"`
	Ch1PIDSet       int      `yaml:"ch1-pid-set"`
	Ch2PIDSet       int      `yaml:"ch2-pid-set"`
	GuaranteedSoak1 bool     `yaml:"guaranteed-soak-1"`
	GuaranteedSoak2 bool     `yaml:"guaranteed-soak-2"`

	JumpProfile int `yaml:"jump-profile"`
	JumpStep    int `yaml:"jump-step"`
	JumpRepeats int `yaml:"jump-repeats"`

	EndAction       EndAction `yaml:"end-action"`
	Ch1IdleSetpoint float64   `yaml:"ch1-idle-setpoint"`
	Ch2IdleSetpoint float64   `yaml:"ch2-idle-setpoint"`

	StartDay  int      `yaml:"start-day"`
	StartTime Duration `yaml:"start-time"`
}

// Program is a named sequence of profile steps, typically loaded from
// a YAML file and written into one of the controller's profile slots.
type Program struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// LoadProgram reads a program definition from a YAML file.
func LoadProgram(path string) (Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Program{}, fmt.Errorf("failed to read program file: %w", err)
	}

	var p Program
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Program{}, fmt.Errorf("failed to parse program file %s: %w", path, err)
	}
	if len(p.Steps) == 0 {
		return Program{}, fmt.Errorf("program %s has no steps", path)
	}
	for i, s := range p.Steps {
		if len(s.EventOutputs) > registers.ProfileEventOutputs {
			return Program{}, fmt.Errorf("step %d drives %d event outputs, controller has %d",
				i+1, len(s.EventOutputs), registers.ProfileEventOutputs)
		}
	}
	return p, nil
}

// InsertStep writes one step of the selected profile. The caller picks
// the profile first; changes stay volatile until Save.
func (c *Controller) InsertStep(ctx context.Context, stepNumber int, s Step) error {
	if err := c.SelectStep(ctx, stepNumber); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileEditAction, editActionEditStep); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileStepType, float64(s.Type)); err != nil {
		return err
	}

	switch s.Type {
	case StepRampTime:
		if err := c.writeStepPreamble(ctx, s); err != nil {
			return err
		}
		if err := c.writeStepDuration(ctx, s.Duration); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.ProfileSetpoint1, s.Ch1Setpoint); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.ProfileSetpoint2, s.Ch2Setpoint); err != nil {
			return err
		}
		return c.writeStepRegulation(ctx, s, true)

	case StepRampRate:
		if err := c.writeStepPreamble(ctx, s); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.ProfileStepRampRate, s.Rate); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.ProfileSetpoint1, s.Ch1Setpoint); err != nil {
			return err
		}
		return c.writeStepRegulation(ctx, s, false)

	case StepSoak:
		if err := c.writeStepPreamble(ctx, s); err != nil {
			return err
		}
		if err := c.writeStepDuration(ctx, s.Duration); err != nil {
			return err
		}
		return c.writeStepRegulation(ctx, s, true)

	case StepJump:
		if err := c.m.Write(ctx, registers.ProfileJumpProfile, float64(s.JumpProfile)); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.ProfileJumpStep, float64(s.JumpStep)); err != nil {
			return err
		}
		return c.m.Write(ctx, registers.ProfileJumpRepeats, float64(s.JumpRepeats))

	case StepEnd:
		if err := c.m.Write(ctx, registers.ProfileEndAction, float64(s.EndAction)); err != nil {
			return err
		}
		if err := c.m.Write(ctx, registers.ProfileIdleSetpoint1, s.Ch1IdleSetpoint); err != nil {
			return err
		}
		return c.m.Write(ctx, registers.ProfileIdleSetpoint2, s.Ch2IdleSetpoint)

	case StepAutostart:
		return c.writeAutostart(ctx, s)

	default:
		return fmt.Errorf("unknown step type %d", s.Type)
	}
}

// writeStepPreamble covers the fields the ramp and soak step types
// share: the wait flag and the event output states.
func (c *Controller) writeStepPreamble(ctx context.Context, s Step) error {
	if err := c.m.Write(ctx, registers.ProfileWaitFor, boolRegister(s.WaitFor)); err != nil {
		return err
	}
	for n := 1; n <= registers.ProfileEventOutputs; n++ {
		enabled := n <= len(s.EventOutputs) && s.EventOutputs[n-1]
		if err := c.m.Write(ctx, registers.ProfileEventOutputName(n), boolRegister(enabled)); err != nil {
			return err
		}
	}
	return nil
}

// writeStepRegulation writes the PID set selection and guaranteed soak
// flags; channel 2 only applies to two-channel step types.
func (c *Controller) writeStepRegulation(ctx context.Context, s Step, bothChannels bool) error {
	if err := c.m.Write(ctx, registers.ProfilePIDSet1, float64(s.Ch1PIDSet)); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileGtdSoak1, boolRegister(s.GuaranteedSoak1)); err != nil {
		return err
	}
	if !bothChannels {
		return nil
	}
	if err := c.m.Write(ctx, registers.ProfilePIDSet2, float64(s.Ch2PIDSet)); err != nil {
		return err
	}
	return c.m.Write(ctx, registers.ProfileGtdSoak2, boolRegister(s.GuaranteedSoak2))
}

func (c *Controller) writeStepDuration(ctx context.Context, d Duration) error {
	hours, minutes, seconds := splitDuration(time.Duration(d))
	if err := c.m.Write(ctx, registers.ProfileSoakHours, float64(hours)); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileSoakMinutes, float64(minutes)); err != nil {
		return err
	}
	return c.m.Write(ctx, registers.ProfileSoakSeconds, float64(seconds))
}

// writeAutostart arms the step with today's date and the configured
// start time and day of week.
func (c *Controller) writeAutostart(ctx context.Context, s Step) error {
	if err := c.m.Write(ctx, registers.ProfileAutostartDateOrDay, 0); err != nil {
		return err
	}

	now := time.Now()
	if err := c.m.Write(ctx, registers.ProfileAutostartMonth, float64(now.Month())); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileAutostartDay, float64(now.Day())); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileAutostartYear, float64(now.Year())); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileAutostartDayOfWeek, float64(s.StartDay)); err != nil {
		return err
	}

	hours, minutes, seconds := splitDuration(time.Duration(s.StartTime))
	if err := c.m.Write(ctx, registers.ProfileAutostartHours, float64(hours)); err != nil {
		return err
	}
	if err := c.m.Write(ctx, registers.ProfileAutostartMinutes, float64(minutes)); err != nil {
		return err
	}
	return c.m.Write(ctx, registers.ProfileAutostartSeconds, float64(seconds))
}

// SetProfileName writes the selected profile's display name, one ASCII
// character per register, space-padded, and commits it. Names longer
// than the register block are truncated.
func (c *Controller) SetProfileName(ctx context.Context, name string) error {
	for _, r := range name {
		if r > unicode.MaxASCII {
			return fmt.Errorf("profile name %q contains non-ASCII character %q", name, r)
		}
	}
	if len(name) > registers.ProfileNameChars {
		slog.Warn("truncating profile name", "name", name, "max", registers.ProfileNameChars)
		name = name[:registers.ProfileNameChars]
	}

	for n := 1; n <= registers.ProfileNameChars; n++ {
		ch := byte(' ')
		if n <= len(name) {
			ch = name[n-1]
		}
		if err := c.m.Write(ctx, registers.ProfileNameCharName(n), float64(ch)); err != nil {
			return err
		}
	}
	return c.Save(ctx)
}

// ConfigureProfile writes a whole program into a profile slot: name,
// then each step in order, then a commit to EEPROM.
func (c *Controller) ConfigureProfile(ctx context.Context, profile int, p Program) error {
	if err := c.SelectProfile(ctx, profile); err != nil {
		return err
	}
	if err := c.SetProfileName(ctx, p.Name); err != nil {
		return err
	}
	for i, s := range p.Steps {
		if err := c.InsertStep(ctx, i+1, s); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Type, err)
		}
	}
	return c.Save(ctx)
}

func splitDuration(d time.Duration) (hours, minutes, seconds int) {
	total := int(d.Seconds())
	return total / 3600, total % 3600 / 60, total % 60
}

func boolRegister(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
