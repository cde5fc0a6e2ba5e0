package source

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// FeetechSource samples a Feetech STS servo bus leader arm. Servos are
// addressed with fixed IDs 1..N. Raw zero is meaningless until calibrated;
// the reference-pose capture supplies the offset.
type FeetechSource struct {
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	ids    []int
	joints int
}

// OpenFeetech opens the serial bus and prepares a sync-read group for
// servo IDs 1..joints.
func OpenFeetech(port string, joints int) (*FeetechSource, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus %s: %w", port, err)
	}
	ids := make([]int, joints)
	for i := range ids {
		ids[i] = i + 1
	}
	return &FeetechSource{
		bus:    bus,
		group:  feetech.NewServoGroupByIDs(bus, ids...),
		ids:    ids,
		joints: joints,
	}, nil
}

func (f *FeetechSource) Joints() int { return f.joints }

func (f *FeetechSource) Close() error { return f.bus.Close() }

// Sample sync-reads all position registers. A servo missing from the sync
// read response gets one bounded retry via an individual read; if that also
// fails the joint is marked faulted, never silently reported stale.
func (f *FeetechSource) Sample(ctx context.Context) (Sample, error) {
	s := Sample{
		Raw:   make([]int, f.joints),
		Fault: make([]bool, f.joints),
		Stamp: time.Now(),
	}
	positions, err := f.group.Positions(ctx)
	if err != nil {
		// Whole-bus failure: retry the group read once before marking
		// every joint faulted.
		positions, err = f.group.Positions(ctx)
		if err != nil {
			for i := range s.Fault {
				s.Fault[i] = true
			}
			return s, nil
		}
	}
	for i, id := range f.ids {
		raw, ok := positions[id]
		if !ok {
			raw, ok = f.retryOne(ctx, id)
		}
		if !ok {
			s.Fault[i] = true
			continue
		}
		s.Raw[i] = raw
	}
	return s, nil
}

func (f *FeetechSource) retryOne(ctx context.Context, id int) (int, bool) {
	servo := feetech.NewServo(f.bus, id, nil)
	pos, err := servo.Position(ctx)
	if err != nil {
		return 0, false
	}
	return pos, true
}

// Disable drops torque on all servos so the operator can move the leader
// freely. Leaders are always sampled passive.
func (f *FeetechSource) Disable(ctx context.Context) error {
	return f.group.DisableAll(ctx)
}
