// Package profile holds the closed registry of supported hardware
// pairings. Adding a pairing is a table entry here, never a control loop
// change.
package profile

import (
	"fmt"
	"sort"

	"github.com/nkoenig/teleop/pkg/source"
)

// SourceKind selects the joint source variant for a pairing's leader arms.
type SourceKind string

const (
	// KindFeetech is a Feetech STS servo bus leader; raw zero is
	// meaningless until calibrated.
	KindFeetech SourceKind = "feetech"
	// KindDynamixel is a Dynamixel absolute-encoder leader; readings are
	// valid immediately on power-up.
	KindDynamixel SourceKind = "dynamixel"
)

// Feetech STS3215 resolution is 4096 counts per turn.
const (
	feetechCountsPerRad   = 4096 / (2 * 3.14159265358979)
	dynamixelCountsPerRad = 4096 / (2 * 3.14159265358979)
)

// ArmSpec declares one leader arm within a pairing.
type ArmSpec struct {
	ID     string // "left", "right", or "main"
	Port   string // default device path, overridable in the config file
	Baud   int    // serial baud for dynamixel leaders
	Joints int
	Names  []string
	Signs  []int // per-joint mechanical orientation
	Scale  float64
}

// Pairing is one supported leader/follower hardware combination.
type Pairing struct {
	Name        string
	Description string
	Source      SourceKind
	Arms        []ArmSpec
	Bimanual    bool

	// Default network endpoint of the follower host. All three channels
	// share one port, routed by path.
	DefaultHost string
	Port        int

	// Bidirectional pairings report follower observations; unidirectional
	// ones only accept commands.
	Bidirectional bool

	// MotorControl reports whether the follower host answers motor
	// enable/reset commands.
	MotorControl bool

	Hz int
}

// CommandURL returns the websocket endpoint for the command stream.
func (p Pairing) CommandURL(host string) string {
	return fmt.Sprintf("ws://%s:%d/commands", host, p.Port)
}

// ObservationURL returns the observation endpoint, or "" for
// unidirectional pairings.
func (p Pairing) ObservationURL(host string) string {
	if !p.Bidirectional {
		return ""
	}
	return fmt.Sprintf("ws://%s:%d/observations", host, p.Port)
}

// MotorURL returns the motor control endpoint, or "" when unsupported.
func (p Pairing) MotorURL(host string) string {
	if !p.MotorControl {
		return ""
	}
	return fmt.Sprintf("ws://%s:%d/motors", host, p.Port)
}

// Arm returns the spec for an arm ID.
func (p Pairing) Arm(id string) (ArmSpec, bool) {
	for _, a := range p.Arms {
		if a.ID == id {
			return a, true
		}
	}
	return ArmSpec{}, false
}

func so101Names() []string {
	return []string{"shoulder_pan", "shoulder_lift", "elbow_flex", "wrist_flex", "wrist_roll", "gripper"}
}

func gelloNames() []string {
	return []string{"joint1", "joint2", "joint3", "joint4", "joint5", "joint6", "gripper"}
}

func ones(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

var registry = map[string]Pairing{
	"so101-piper": {
		Name:        "so101-piper",
		Description: "Bimanual SO-101 leaders driving remote Piper arms",
		Source:      KindFeetech,
		Bimanual:    true,
		Arms: []ArmSpec{
			{ID: "left", Port: "/dev/ttyACM0", Joints: 6, Names: so101Names(), Signs: ones(6), Scale: feetechCountsPerRad},
			{ID: "right", Port: "/dev/ttyACM1", Joints: 6, Names: so101Names(), Signs: ones(6), Scale: feetechCountsPerRad},
		},
		DefaultHost:   "100.117.16.87",
		Port:          5555,
		Bidirectional: true,
		MotorControl:  true,
		Hz:            60,
	},
	"gello-x5": {
		Name:        "gello-x5",
		Description: "Bimanual GELLO (Dynamixel) leaders driving ARX X5 arms over CAN",
		Source:      KindDynamixel,
		Bimanual:    true,
		Arms: []ArmSpec{
			{ID: "left", Port: "/dev/GELLO_L", Baud: 57600, Joints: 7, Names: gelloNames(),
				Signs: []int{1, 1, -1, 1, 1, 1, 1}, Scale: dynamixelCountsPerRad},
			{ID: "right", Port: "/dev/GELLO_R", Baud: 57600, Joints: 7, Names: gelloNames(),
				Signs: []int{1, 1, -1, 1, 1, 1, 1}, Scale: dynamixelCountsPerRad},
		},
		DefaultHost:   "100.104.247.35",
		Port:          5555,
		Bidirectional: true,
		MotorControl:  true,
		Hz:            60,
	},
	"so101-single": {
		Name:        "so101-single",
		Description: "Single SO-101 leader, command-only follower link",
		Source:      KindFeetech,
		Arms: []ArmSpec{
			{ID: "main", Port: "/dev/ttyACM0", Joints: 6, Names: so101Names(), Signs: ones(6), Scale: feetechCountsPerRad},
		},
		DefaultHost:   "127.0.0.1",
		Port:          5555,
		Bidirectional: false,
		MotorControl:  false,
		Hz:            30,
	},
}

// Lookup returns the pairing for a registry name. The returned value is a
// private copy; callers may override its defaults freely.
func Lookup(name string) (Pairing, bool) {
	p, ok := registry[name]
	if ok {
		p.Arms = append([]ArmSpec(nil), p.Arms...)
	}
	return p, ok
}

// Names returns all registered pairing names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenSource instantiates the joint source variant declared by the
// pairing for one arm.
func (p Pairing) OpenSource(arm ArmSpec) (source.Source, error) {
	switch p.Source {
	case KindFeetech:
		return source.OpenFeetech(arm.Port, arm.Joints)
	case KindDynamixel:
		baud := arm.Baud
		if baud == 0 {
			baud = 57600
		}
		return source.OpenDynamixel(arm.Port, baud, arm.Joints)
	}
	return nil, fmt.Errorf("unknown source kind %q", p.Source)
}
