// Package calib maps raw leader encoder readings to normalized joint
// commands and persists per-arm calibration profiles.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMissing is returned when a required profile file does not exist.
// Starting a session without calibration is a hard error, never a default.
var ErrMissing = errors.New("calibration profile missing")

// Joint holds calibration for a single joint.
//
// Offset is the raw reading at the declared reference pose. Sign is -1 for
// joints mounted in reverse mechanical orientation (never reorder the
// sequence to fix orientation). Scale is in raw counts per output unit
// (counts per radian for arm joints). RawMin/RawMax declare the valid raw
// range; when RawMax > RawMin the normalized output is clamped to it, and
// for wrapping encoders the range doubles as the wrap span.
type Joint struct {
	Offset int     `json:"offset"`
	Sign   int     `json:"sign"`
	Scale  float64 `json:"scale"`
	RawMin int     `json:"raw_min"`
	RawMax int     `json:"raw_max"`
	Wraps  bool    `json:"wraps,omitempty"`
}

// Profile holds calibration for one arm. Joints are indexed positionally to
// match the sample order of the arm's joint source. Profiles are immutable
// during a control session; recalibration writes a new file.
type Profile struct {
	Arm    string  `json:"arm"`
	Joints []Joint `json:"joints"`

	// FollowerOffset holds per-joint differential offsets captured from the
	// follower's reported pose at the calibration instant. Empty for
	// pairings that zero leader and follower independently.
	FollowerOffset []float64 `json:"follower_offset,omitempty"`
}

// Normalize converts a raw reading to a normalized joint value.
func (j Joint) Normalize(raw int) float64 {
	delta := raw - j.Offset
	if j.Wraps {
		span := j.RawMax - j.RawMin
		if span > 0 {
			// Wrap-aware subtraction: a reading just past the wrap
			// boundary is a small negative delta, not a full turn.
			delta = ((delta+span/2)%span+span)%span - span/2
		}
	}
	v := float64(j.Sign) * float64(delta) / j.Scale
	if !j.Wraps && j.RawMax > j.RawMin {
		lo := j.limit(j.RawMin)
		hi := j.limit(j.RawMax)
		if lo > hi {
			lo, hi = hi, lo
		}
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
	}
	return v
}

func (j Joint) limit(raw int) float64 {
	return float64(j.Sign) * float64(raw-j.Offset) / j.Scale
}

// Denormalize converts a normalized value back to a raw reading. It is the
// inverse of Normalize for in-range, non-wrapping values.
func (j Joint) Denormalize(v float64) int {
	return j.Offset + int(v*j.Scale/float64(j.Sign))
}

// Normalize applies the profile element-wise to a raw sample.
func (p *Profile) Normalize(raw []int) []float64 {
	out := make([]float64, len(raw))
	for i, r := range raw {
		if i >= len(p.Joints) {
			break
		}
		out[i] = p.Joints[i].Normalize(r)
		if i < len(p.FollowerOffset) {
			out[i] += p.FollowerOffset[i]
		}
	}
	return out
}

// Validate checks profile invariants against the arm's joint count.
func (p *Profile) Validate(joints int) error {
	if len(p.Joints) != joints {
		return fmt.Errorf("profile %q has %d joints, arm has %d", p.Arm, len(p.Joints), joints)
	}
	for i, j := range p.Joints {
		if j.Sign != 1 && j.Sign != -1 {
			return fmt.Errorf("profile %q joint %d: sign must be -1 or +1, got %d", p.Arm, i, j.Sign)
		}
		if j.Scale <= 0 {
			return fmt.Errorf("profile %q joint %d: scale must be > 0, got %g", p.Arm, i, j.Scale)
		}
	}
	return nil
}

// Path returns the profile file path for an arm within dir.
func Path(dir, arm string) string {
	return filepath.Join(dir, arm+".json")
}

// Load reads and validates a profile for an arm from dir.
func Load(dir, arm string, joints int) (*Profile, error) {
	data, err := os.ReadFile(Path(dir, arm))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: arm %q (run calibrate first)", ErrMissing, arm)
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse calibration for %q: %w", arm, err)
	}
	if err := p.Validate(joints); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the profile to dir, replacing any previous profile for the
// same arm.
func (p *Profile) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(dir, p.Arm), data, 0o644)
}
