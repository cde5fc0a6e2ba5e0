package calib

import (
	"errors"
	"math"
	"testing"
)

func TestJoint_Normalize(t *testing.T) {
	j := Joint{Offset: 2048, Sign: 1, Scale: 651.9}

	tests := []struct {
		raw      int
		expected float64
	}{
		{2048, 0},               // reference -> zero
		{2048 + 652, 1.00016},   // ~one radian positive
		{2048 - 652, -1.00016},  // ~one radian negative
		{2048 + 1304, 2.000306}, // ~two radians
	}

	for _, tt := range tests {
		got := j.Normalize(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Normalize(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestJoint_NormalizeIsPure(t *testing.T) {
	j := Joint{Offset: 1500, Sign: -1, Scale: 100}
	first := j.Normalize(1234)
	for i := 0; i < 10; i++ {
		if got := j.Normalize(1234); got != first {
			t.Fatalf("Normalize not deterministic: %f then %f", first, got)
		}
	}
}

func TestJoint_SignFlipsOutput(t *testing.T) {
	pos := Joint{Offset: 2048, Sign: 1, Scale: 651.9}
	neg := Joint{Offset: 2048, Sign: -1, Scale: 651.9}

	for _, raw := range []int{0, 1000, 2048, 3000, 4095} {
		if got, want := neg.Normalize(raw), -pos.Normalize(raw); math.Abs(got-want) > 1e-9 {
			t.Errorf("sign flip at raw %d: got %f, want %f", raw, got, want)
		}
	}
}

func TestProfile_SignInvariant(t *testing.T) {
	// Flipping one joint's sign negates only that joint's output.
	mk := func(sign2 int) *Profile {
		return &Profile{Arm: "left", Joints: []Joint{
			{Offset: 2000, Sign: 1, Scale: 100},
			{Offset: 2000, Sign: 1, Scale: 100},
			{Offset: 2000, Sign: sign2, Scale: 100},
		}}
	}
	raw := []int{2100, 1900, 2300}
	base := mk(1).Normalize(raw)
	flipped := mk(-1).Normalize(raw)

	for i := range base {
		want := base[i]
		if i == 2 {
			want = -base[i]
		}
		if math.Abs(flipped[i]-want) > 1e-9 {
			t.Errorf("joint %d: got %f, want %f", i, flipped[i], want)
		}
	}
}

func TestJoint_WrapAware(t *testing.T) {
	// Single-turn encoder, span 4096, reference near the wrap boundary.
	j := Joint{Offset: 4090, Sign: 1, Scale: 651.9, RawMin: 0, RawMax: 4096, Wraps: true}

	tests := []struct {
		raw      int
		expected float64
	}{
		{4090, 0},
		{10, 16.0 / 651.9},    // just past the wrap: small positive
		{4080, -10.0 / 651.9}, // just before reference: small negative
	}

	for _, tt := range tests {
		got := j.Normalize(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Normalize(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestJoint_ClampToRange(t *testing.T) {
	j := Joint{Offset: 2000, Sign: 1, Scale: 100, RawMin: 1500, RawMax: 2500}

	if got := j.Normalize(3000); math.Abs(got-5.0) > 1e-9 {
		t.Errorf("above range: got %f, want clamp to 5.0", got)
	}
	if got := j.Normalize(100); math.Abs(got-(-5.0)) > 1e-9 {
		t.Errorf("below range: got %f, want clamp to -5.0", got)
	}
	// Reversed joints clamp on the mirrored limits.
	r := Joint{Offset: 2000, Sign: -1, Scale: 100, RawMin: 1500, RawMax: 2500}
	if got := r.Normalize(3000); math.Abs(got-(-5.0)) > 1e-9 {
		t.Errorf("reversed above range: got %f, want clamp to -5.0", got)
	}
}

func TestJoint_RoundTrip(t *testing.T) {
	j := Joint{Offset: 823, Sign: 1, Scale: 200}
	for raw := 500; raw <= 3500; raw += 100 {
		norm := j.Normalize(raw)
		back := j.Denormalize(norm)
		if math.Abs(float64(back-raw)) > 1 {
			t.Errorf("round-trip failed: %d -> %f -> %d", raw, norm, back)
		}
	}
}

func TestProfile_ReferenceYieldsZeroVector(t *testing.T) {
	raw := []int{2048, 2048, 2048, 2048, 2048, 2048}
	p := &Profile{Arm: "left", Joints: make([]Joint, 6)}
	for i := range p.Joints {
		p.Joints[i] = Joint{Offset: raw[i], Sign: 1, Scale: 651.9}
	}

	out := p.Normalize(raw)
	for i, v := range out {
		if math.Abs(v) > 1e-9 {
			t.Errorf("joint %d: got %f, want 0", i, v)
		}
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Profile
		joints  int
		wantErr bool
	}{
		{"valid", Profile{Arm: "a", Joints: []Joint{{Sign: 1, Scale: 1}, {Sign: -1, Scale: 2}}}, 2, false},
		{"wrong count", Profile{Arm: "a", Joints: []Joint{{Sign: 1, Scale: 1}}}, 2, true},
		{"bad sign", Profile{Arm: "a", Joints: []Joint{{Sign: 0, Scale: 1}}}, 1, true},
		{"bad scale", Profile{Arm: "a", Joints: []Joint{{Sign: 1, Scale: 0}}}, 1, true},
		{"negative scale", Profile{Arm: "a", Joints: []Joint{{Sign: 1, Scale: -3}}}, 1, true},
	}

	for _, tt := range tests {
		err := tt.p.Validate(tt.joints)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir(), "left", 6)
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{
		Arm: "right",
		Joints: []Joint{
			{Offset: 2048, Sign: 1, Scale: 651.9, RawMin: 800, RawMax: 3300},
			{Offset: 1024, Sign: -1, Scale: 651.9, RawMin: 500, RawMax: 3600},
		},
		FollowerOffset: []float64{0.1, -0.2},
	}
	if err := p.Save(dir); err != nil {
		t.Fatal(err)
	}

	got, err := Load(dir, "right", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Arm != p.Arm || len(got.Joints) != 2 {
		t.Fatalf("loaded profile mismatch: %+v", got)
	}
	if got.Joints[1].Sign != -1 || got.Joints[1].Offset != 1024 {
		t.Errorf("joint 1 mismatch: %+v", got.Joints[1])
	}
	if len(got.FollowerOffset) != 2 || got.FollowerOffset[0] != 0.1 {
		t.Errorf("follower offset mismatch: %v", got.FollowerOffset)
	}
}

func TestProfile_FollowerOffsetApplied(t *testing.T) {
	p := &Profile{Arm: "left", Joints: []Joint{{Offset: 2048, Sign: 1, Scale: 100}}, FollowerOffset: []float64{0.5}}
	out := p.Normalize([]int{2048})
	if math.Abs(out[0]-0.5) > 1e-9 {
		t.Errorf("got %f, want 0.5", out[0])
	}
}
