// Package channel carries joint commands to the follower and follower
// observations back, over an unreliable push-style transport that never
// blocks the control loop.
package channel

// Command is the outbound wire frame, one per arm per tick. Seq increases
// by exactly one per attempted tick; the receiver discards out-of-order or
// duplicate frames. StampUS is the capture timestamp in microseconds for
// staleness measurement on the receiving side.
type Command struct {
	ArmID   string    `json:"arm_id"`
	Seq     uint64    `json:"seq"`
	StampUS int64     `json:"stamp_us"`
	Joints  []float64 `json:"joints"`
}

// Observation is the inbound best-effort frame.
type Observation struct {
	ArmID   string    `json:"arm_id"`
	SeqEcho uint64    `json:"seq_echo,omitempty"`
	StampUS int64     `json:"stamp_us"`
	Joints  []float64 `json:"joints"`
	Flags   uint32    `json:"flags,omitempty"`
}

// Channel is the transport contract of the control loop.
//
// Send never blocks: the newest unsent command replaces any older buffered
// one, and Send reports false when that conflation dropped a frame.
// Observation is a non-blocking poll; absence of an observation is the
// expected steady state, not an error.
type Channel interface {
	Send(Command) bool
	Observation() (Observation, bool)
	Close() error
}
