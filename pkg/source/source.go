// Package source reads raw joint positions from leader arm hardware.
package source

import (
	"context"
	"time"
)

// Sample is one set of raw joint readings. Raw and Fault are indexed
// positionally; a joint whose read faulted has Fault[i] set and its Raw[i]
// value must not be trusted. Samples are immutable once captured.
type Sample struct {
	Raw   []int
	Fault []bool
	Stamp time.Time
}

// Faulted reports whether any joint in the sample faulted.
func (s Sample) Faulted() bool {
	for _, f := range s.Fault {
		if f {
			return true
		}
	}
	return false
}

// Source polls one physical leader device. Sample must honor the context
// deadline so a stuck bus cannot stall the control loop; callers wrap each
// read in a timeout on the order of the tick period.
type Source interface {
	// Sample reads all joints once. Per-joint read failures are marked in
	// the returned Sample rather than failing the whole read; an error is
	// returned only when the device is unusable.
	Sample(ctx context.Context) (Sample, error)

	// Joints returns the number of joints this source reports.
	Joints() int

	Close() error
}
