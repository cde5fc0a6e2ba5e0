package calib

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkoenig/teleop/pkg/source"
)

// ErrCaptureFault aborts a calibration capture when the reference sample
// itself faulted. The previous profile on disk is left untouched.
var ErrCaptureFault = errors.New("sensor fault during calibration capture")

// CaptureSpec declares the per-joint conventions a capture cannot measure:
// mechanical orientation and unit conversion.
type CaptureSpec struct {
	Arm   string
	Signs []int
	Scale float64

	// RawSpan, when nonzero, marks every joint as a wrapping encoder with
	// the given span (e.g. 4096 for a single-turn magnetic encoder).
	RawSpan int
}

// Capture samples the leader held at its reference pose and builds a profile
// with offset = raw reading at reference. It fails loudly on any joint
// fault rather than producing a degenerate calibration.
func Capture(ctx context.Context, src source.Source, spec CaptureSpec) (*Profile, error) {
	if len(spec.Signs) != src.Joints() {
		return nil, fmt.Errorf("capture %q: %d signs for %d joints", spec.Arm, len(spec.Signs), src.Joints())
	}
	s, err := src.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture %q: %w", spec.Arm, err)
	}
	for i, faulted := range s.Fault {
		if faulted {
			return nil, fmt.Errorf("%w: arm %q joint %d", ErrCaptureFault, spec.Arm, i)
		}
	}
	p := &Profile{Arm: spec.Arm, Joints: make([]Joint, len(s.Raw))}
	for i, raw := range s.Raw {
		p.Joints[i] = Joint{
			Offset: raw,
			Sign:   spec.Signs[i],
			Scale:  spec.Scale,
		}
		if spec.RawSpan > 0 {
			p.Joints[i].RawMin = 0
			p.Joints[i].RawMax = spec.RawSpan
			p.Joints[i].Wraps = true
		}
	}
	return p, nil
}

// CaptureWithFollower captures the leader at its reference pose while
// recording the follower's reported pose at the same instant. The
// differential offset aligns independently-zeroed leader and follower.
// followerPose must be the follower's normalized joint values.
func CaptureWithFollower(ctx context.Context, src source.Source, spec CaptureSpec, followerPose []float64) (*Profile, error) {
	p, err := Capture(ctx, src, spec)
	if err != nil {
		return nil, err
	}
	if len(followerPose) != len(p.Joints) {
		return nil, fmt.Errorf("capture %q: follower reported %d joints, leader has %d", spec.Arm, len(followerPose), len(p.Joints))
	}
	p.FollowerOffset = append([]float64(nil), followerPose...)
	return p, nil
}

// RecordRange folds a raw sample into per-joint min/max tracking. Used by
// the interactive range-of-motion sweep after the reference capture.
func (p *Profile) RecordRange(raw []int) {
	for i := range p.Joints {
		if i >= len(raw) {
			return
		}
		j := &p.Joints[i]
		if j.Wraps {
			continue
		}
		if j.RawMin == 0 && j.RawMax == 0 {
			j.RawMin, j.RawMax = raw[i], raw[i]
			continue
		}
		if raw[i] < j.RawMin {
			j.RawMin = raw[i]
		}
		if raw[i] > j.RawMax {
			j.RawMax = raw[i]
		}
	}
}
