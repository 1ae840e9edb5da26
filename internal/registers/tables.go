package registers

import "fmt"

// Static register tables, one per controller variant. Addresses follow
// the Modbus chapters of the respective Watlow user manuals; the F4
// encodes temperatures with one implied decimal (scale 0.1) while the
// Series 93 works in whole degrees.

// Logical names shared by both variants.
const (
	ProcessValue = "process-value"
	Setpoint     = "setpoint"
	RampRate     = "ramp-rate"
)

// F4-only logical names.
const (
	ProcessValue2 = "process-value-2"
	Setpoint2     = "setpoint-2"
	PIDUnits      = "pid-units"
	SaveChanges   = "save-changes"

	ProfileNumber     = "profile-number"
	ProfileStep       = "profile-step"
	ProfileEditAction = "profile-edit-action"
	ProfileStepType   = "profile-step-type"
	ProfileWaitFor    = "profile-wait-for"

	ProfileAutostartDateOrDay = "profile-autostart-date-or-day"
	ProfileAutostartMonth     = "profile-autostart-month"
	ProfileAutostartDay       = "profile-autostart-day"
	ProfileAutostartYear      = "profile-autostart-year"
	ProfileAutostartDayOfWeek = "profile-autostart-day-of-week"
	ProfileAutostartHours     = "profile-autostart-hours"
	ProfileAutostartMinutes   = "profile-autostart-minutes"
	ProfileAutostartSeconds   = "profile-autostart-seconds"

	ProfileSoakHours   = "profile-soak-hours"
	ProfileSoakMinutes = "profile-soak-minutes"
	ProfileSoakSeconds = "profile-soak-seconds"

	ProfileStepRampRate = "profile-step-ramp-rate"
	ProfileSetpoint1    = "profile-setpoint-1"
	ProfileSetpoint2    = "profile-setpoint-2"
	ProfilePIDSet1      = "profile-pid-set-1"
	ProfilePIDSet2      = "profile-pid-set-2"
	ProfileGtdSoak1     = "profile-guaranteed-soak-1"
	ProfileGtdSoak2     = "profile-guaranteed-soak-2"

	ProfileJumpProfile = "profile-jump-profile"
	ProfileJumpStep    = "profile-jump-step"
	ProfileJumpRepeats = "profile-jump-repeats"

	ProfileEndAction     = "profile-end-action"
	ProfileIdleSetpoint1 = "profile-idle-setpoint-1"
	ProfileIdleSetpoint2 = "profile-idle-setpoint-2"
)

// ProfileEventOutputs is the number of event outputs a profile step
// drives; ProfileNameChars the length of a stored profile name.
const (
	ProfileEventOutputs = 8
	ProfileNameChars    = 10
)

// ProfileEventOutputName is the logical name of event output n (1-8)
// of the step under edit.
func ProfileEventOutputName(n int) string {
	return fmt.Sprintf("profile-event-output-%d", n)
}

// ProfileNameCharName is the logical name of character position n
// (1-10) of the selected profile's name.
func ProfileNameCharName(n int) string {
	return fmt.Sprintf("profile-name-%d", n)
}

var f4Table = buildTable(append([]Entry{
	{Name: ProcessValue, Address: 100, Words: 1, Scale: 0.1, Signed: true, ReadOnly: true},
	{Name: ProcessValue2, Address: 104, Words: 1, Scale: 0.1, Signed: true, ReadOnly: true},
	{Name: Setpoint, Address: 300, Words: 1, Scale: 0.1, Signed: true},
	{Name: Setpoint2, Address: 319, Words: 1, Scale: 0.1, Signed: true},
	{Name: RampRate, Address: 4043, Words: 1, Scale: 0.1},
	{Name: PIDUnits, Address: 901, Words: 1, Scale: 1},
	{Name: SaveChanges, Address: 26, Words: 1, Scale: 1},
	{Name: ProfileNumber, Address: 4000, Words: 1, Scale: 1},
	{Name: ProfileStep, Address: 4001, Words: 1, Scale: 1},
	{Name: ProfileEditAction, Address: 4002, Words: 1, Scale: 1},
}, append(f4ProfileStepEntries(), f4PIDEntries()...)...))

var series93Table = buildTable([]Entry{
	{Name: ProcessValue, Address: 100, Words: 1, Scale: 1, Signed: true, ReadOnly: true},
	{Name: Setpoint, Address: 300, Words: 1, Scale: 1, Signed: true},
	{Name: RampRate, Address: 304, Words: 1, Scale: 1},
	{Name: "proportional-band", Address: 501, Words: 1, Scale: 1},
	{Name: "reset", Address: 502, Words: 1, Scale: 0.01},
	{Name: "rate", Address: 503, Words: 1, Scale: 0.01},
	{Name: "hysteresis", Address: 504, Words: 1, Scale: 1},
	{Name: "calibration-offset", Address: 605, Words: 1, Scale: 1, Signed: true},
})

// PIDSets is the number of PID parameter sets the F4 exposes per channel.
const PIDSets = 5

// PIDEntryName builds the logical name of one PID parameter of one set,
// e.g. PIDEntryName(1, "proportional-band").
func PIDEntryName(set int, param string) string {
	return fmt.Sprintf("pid-%d-%s", set, param)
}

// f4PIDEntries lays out the PID parameter blocks: ten registers per set
// starting at 500, the first seven in use.
func f4PIDEntries() []Entry {
	params := []struct {
		name   string
		offset uint16
		scale  float64
	}{
		{"proportional-band", 0, 1},
		{"integral", 1, 0.01},
		{"derivative", 2, 0.01},
		{"reset", 3, 0.01},
		{"rate", 4, 0.01},
		{"dead-band", 5, 1},
		{"hysteresis", 6, 1},
	}

	var entries []Entry
	for set := 1; set <= PIDSets; set++ {
		base := uint16(500 + (set-1)*10)
		for _, p := range params {
			entries = append(entries, Entry{
				Name:    PIDEntryName(set, p.name),
				Address: base + p.offset,
				Words:   1,
				Scale:   p.scale,
			})
		}
	}
	return entries
}

// f4ProfileStepEntries lays out the step-under-edit block that the
// edit action exposes, plus the selected profile's name characters.
func f4ProfileStepEntries() []Entry {
	entries := []Entry{
		{Name: ProfileStepType, Address: 4003, Words: 1, Scale: 1},
		{Name: ProfileAutostartDateOrDay, Address: 4004, Words: 1, Scale: 1},
		{Name: ProfileAutostartMonth, Address: 4005, Words: 1, Scale: 1},
		{Name: ProfileAutostartDay, Address: 4006, Words: 1, Scale: 1},
		{Name: ProfileAutostartYear, Address: 4007, Words: 1, Scale: 1},
		{Name: ProfileAutostartDayOfWeek, Address: 4008, Words: 1, Scale: 1},
		{Name: ProfileAutostartHours, Address: 4009, Words: 1, Scale: 1},
		{Name: ProfileAutostartMinutes, Address: 4010, Words: 1, Scale: 1},
		{Name: ProfileAutostartSeconds, Address: 4011, Words: 1, Scale: 1},
		{Name: ProfileWaitFor, Address: 4012, Words: 1, Scale: 1},
		{Name: ProfileSoakHours, Address: 4021, Words: 1, Scale: 1},
		{Name: ProfileSoakMinutes, Address: 4022, Words: 1, Scale: 1},
		{Name: ProfileSoakSeconds, Address: 4023, Words: 1, Scale: 1},
		{Name: ProfileStepRampRate, Address: 4024, Words: 1, Scale: 0.1},
		{Name: ProfileSetpoint1, Address: 4025, Words: 1, Scale: 0.1, Signed: true},
		{Name: ProfileSetpoint2, Address: 4026, Words: 1, Scale: 0.1, Signed: true},
		{Name: ProfilePIDSet1, Address: 4027, Words: 1, Scale: 1},
		{Name: ProfilePIDSet2, Address: 4028, Words: 1, Scale: 1},
		{Name: ProfileGtdSoak1, Address: 4029, Words: 1, Scale: 1},
		{Name: ProfileGtdSoak2, Address: 4030, Words: 1, Scale: 1},
		{Name: ProfileJumpProfile, Address: 4031, Words: 1, Scale: 1},
		{Name: ProfileJumpStep, Address: 4032, Words: 1, Scale: 1},
		{Name: ProfileJumpRepeats, Address: 4033, Words: 1, Scale: 1},
		{Name: ProfileEndAction, Address: 4034, Words: 1, Scale: 1},
		{Name: ProfileIdleSetpoint1, Address: 4035, Words: 1, Scale: 0.1, Signed: true},
		{Name: ProfileIdleSetpoint2, Address: 4036, Words: 1, Scale: 0.1, Signed: true},
	}
	for n := 1; n <= ProfileEventOutputs; n++ {
		entries = append(entries, Entry{
			Name:    ProfileEventOutputName(n),
			Address: uint16(4012 + n), // 4013-4020
			Words:   1,
			Scale:   1,
		})
	}
	for n := 1; n <= ProfileNameChars; n++ {
		entries = append(entries, Entry{
			Name:    ProfileNameCharName(n),
			Address: uint16(4049 + n), // 4050-4059
			Words:   1,
			Scale:   1,
		})
	}
	return entries
}

func buildTable(entries []Entry) map[string]Entry {
	table := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, dup := table[e.Name]; dup {
			panic("duplicate register name " + e.Name)
		}
		table[e.Name] = e
	}
	return table
}

// Table returns a copy of the variant's entries, used to seed the
// simulated device with its valid address space.
func Table(v Variant) []Entry {
	var table map[string]Entry
	switch v {
	case F4:
		table = f4Table
	case Series93:
		table = series93Table
	default:
		return nil
	}

	entries := make([]Entry, 0, len(table))
	for _, e := range table {
		entries = append(entries, e)
	}
	return entries
}
