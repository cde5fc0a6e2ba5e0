package source

import (
	"context"
	"time"

	"github.com/nkoenig/teleop/pkg/source/dxl"
)

// DynamixelSource samples a Dynamixel leader arm. Positions are multi-turn
// absolute: valid immediately on power-up, no homing sequence, unlike the
// servo-bus leaders.
type DynamixelSource struct {
	bus *dxl.Bus
	ids []uint8
}

// OpenDynamixel opens the bus and addresses servo IDs 1..joints.
func OpenDynamixel(port string, baud, joints int) (*DynamixelSource, error) {
	bus, err := dxl.Open(port, baud)
	if err != nil {
		return nil, err
	}
	ids := make([]uint8, joints)
	for i := range ids {
		ids[i] = uint8(i + 1)
	}
	return &DynamixelSource{bus: bus, ids: ids}, nil
}

func (d *DynamixelSource) Joints() int { return len(d.ids) }

func (d *DynamixelSource) Close() error { return d.bus.Close() }

// Sample sync-reads present positions. A servo absent from the sync read
// response gets one individual-read retry before its joint is marked
// faulted.
func (d *DynamixelSource) Sample(ctx context.Context) (Sample, error) {
	s := Sample{
		Raw:   make([]int, len(d.ids)),
		Fault: make([]bool, len(d.ids)),
		Stamp: time.Now(),
	}
	positions, err := d.bus.SyncReadPositions(ctx, d.ids)
	if err != nil {
		positions = nil
	}
	for i, id := range d.ids {
		raw, ok := positions[id]
		if !ok {
			v, rerr := d.bus.ReadU32(ctx, id, dxl.AddrPresentPosition)
			if rerr != nil {
				s.Fault[i] = true
				continue
			}
			raw = v
		}
		// Present position is a signed 32-bit count in extended
		// position mode.
		s.Raw[i] = int(int32(raw))
	}
	return s, nil
}
