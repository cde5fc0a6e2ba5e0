package calib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nkoenig/teleop/pkg/source"
)

type stubSource struct {
	raw   []int
	fault []bool
	err   error
}

func (s *stubSource) Sample(ctx context.Context) (source.Sample, error) {
	if s.err != nil {
		return source.Sample{}, s.err
	}
	fault := s.fault
	if fault == nil {
		fault = make([]bool, len(s.raw))
	}
	return source.Sample{Raw: s.raw, Fault: fault, Stamp: time.Now()}, nil
}

func (s *stubSource) Joints() int  { return len(s.raw) }
func (s *stubSource) Close() error { return nil }

func TestCapture(t *testing.T) {
	src := &stubSource{raw: []int{2048, 1000, 3000}}
	spec := CaptureSpec{Arm: "left", Signs: []int{1, -1, 1}, Scale: 651.9}

	p, err := Capture(context.Background(), src, spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Joints) != 3 {
		t.Fatalf("got %d joints, want 3", len(p.Joints))
	}
	for i, j := range p.Joints {
		if j.Offset != src.raw[i] {
			t.Errorf("joint %d offset = %d, want %d", i, j.Offset, src.raw[i])
		}
		if j.Sign != spec.Signs[i] {
			t.Errorf("joint %d sign = %d, want %d", i, j.Sign, spec.Signs[i])
		}
	}

	// Normalizing the capture sample must yield the zero vector.
	out := p.Normalize(src.raw)
	for i, v := range out {
		if v != 0 {
			t.Errorf("joint %d: got %f, want 0", i, v)
		}
	}
}

func TestCapture_FaultAborts(t *testing.T) {
	src := &stubSource{raw: []int{2048, 1000}, fault: []bool{false, true}}
	spec := CaptureSpec{Arm: "left", Signs: []int{1, 1}, Scale: 100}

	_, err := Capture(context.Background(), src, spec)
	if !errors.Is(err, ErrCaptureFault) {
		t.Fatalf("expected ErrCaptureFault, got %v", err)
	}
}

func TestCapture_SignCountMismatch(t *testing.T) {
	src := &stubSource{raw: []int{1, 2, 3}}
	spec := CaptureSpec{Arm: "left", Signs: []int{1, 1}, Scale: 100}

	if _, err := Capture(context.Background(), src, spec); err == nil {
		t.Fatal("expected error for sign count mismatch")
	}
}

func TestCapture_WrappingSpan(t *testing.T) {
	src := &stubSource{raw: []int{4090}}
	spec := CaptureSpec{Arm: "left", Signs: []int{1}, Scale: 651.9, RawSpan: 4096}

	p, err := Capture(context.Background(), src, spec)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Joints[0].Wraps || p.Joints[0].RawMax != 4096 {
		t.Fatalf("expected wrapping joint with span 4096, got %+v", p.Joints[0])
	}
}

func TestCaptureWithFollower(t *testing.T) {
	src := &stubSource{raw: []int{2048, 2048}}
	spec := CaptureSpec{Arm: "right", Signs: []int{1, 1}, Scale: 100}

	p, err := CaptureWithFollower(context.Background(), src, spec, []float64{0.25, -0.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.FollowerOffset) != 2 || p.FollowerOffset[1] != -0.5 {
		t.Fatalf("follower offset not stored: %v", p.FollowerOffset)
	}

	if _, err := CaptureWithFollower(context.Background(), src, spec, []float64{1}); err == nil {
		t.Fatal("expected error for follower pose length mismatch")
	}
}

func TestRecordRange(t *testing.T) {
	p := &Profile{Arm: "left", Joints: []Joint{{Offset: 2000, Sign: 1, Scale: 100}}}

	p.RecordRange([]int{2000})
	p.RecordRange([]int{1500})
	p.RecordRange([]int{2600})
	p.RecordRange([]int{2100})

	if p.Joints[0].RawMin != 1500 || p.Joints[0].RawMax != 2600 {
		t.Errorf("range = [%d, %d], want [1500, 2600]", p.Joints[0].RawMin, p.Joints[0].RawMax)
	}
}
