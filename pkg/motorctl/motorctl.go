// Package motorctl drives remote motor enable/disable/reset over a
// low-rate command/response channel, separate from the fixed-rate command
// stream.
package motorctl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MotorState is the last known state of one remote arm's motors. It is
// mutated only by this channel; the control loop reads snapshots.
type MotorState int

const (
	Disabled MotorState = iota
	PartiallyEnabled
	FullyEnabled
	Faulted
)

func (s MotorState) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case PartiallyEnabled:
		return "partially_enabled"
	case FullyEnabled:
		return "fully_enabled"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("MotorState(%d)", int(s))
}

// Command kinds recognized by the follower host.
const (
	KindEnablePartial = "enable_partial"
	KindFullReset     = "full_reset"
	KindStatus        = "status"
	KindQuit          = "quit"
)

// Request is the outbound wire frame.
type Request struct {
	Kind    string `json:"kind"`
	Arm     string `json:"arm"`
	StampUS int64  `json:"stamp_us"`
}

// Reply is the inbound ack/status frame.
type Reply struct {
	Ack   bool   `json:"ack"`
	Arm   string `json:"arm"`
	State string `json:"state"`
}

// ErrTimeout is returned when the follower does not acknowledge a motor
// command within the deadline. The affected arm is marked Faulted locally:
// an unacknowledged enable/reset leaves the arm state unknown, which is
// treated as unsafe.
var ErrTimeout = errors.New("motor command not acknowledged")

// Client is a request/reply motor control endpoint. Methods are safe for
// concurrent use with State readers; commands themselves are serialized.
type Client struct {
	mu      sync.Mutex
	ws      *websocket.Conn
	timeout time.Duration

	stateMu sync.RWMutex
	states  map[string]MotorState
}

// Dial connects the motor control socket.
func Dial(url string, timeout time.Duration) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial motor channel %s: %w", url, err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		ws:      ws,
		timeout: timeout,
		states:  make(map[string]MotorState),
	}, nil
}

// State returns the last known motor state for an arm.
func (c *Client) State(arm string) MotorState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.states[arm]
}

func (c *Client) setState(arm string, s MotorState) {
	c.stateMu.Lock()
	c.states[arm] = s
	c.stateMu.Unlock()
}

func parseState(s string) MotorState {
	switch s {
	case "disabled":
		return Disabled
	case "partially_enabled":
		return PartiallyEnabled
	case "fully_enabled":
		return FullyEnabled
	}
	return Faulted
}

// roundTrip sends one request and waits for a positive ack within the
// deadline. On timeout or nack the arm is marked Faulted.
func (c *Client) roundTrip(kind, arm string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{Kind: kind, Arm: arm, StampUS: time.Now().UnixMicro()}
	if err := c.ws.WriteJSON(req); err != nil {
		c.setState(arm, Faulted)
		return fmt.Errorf("send %s for %s: %w", kind, arm, err)
	}
	c.ws.SetReadDeadline(time.Now().Add(c.timeout))
	var rep Reply
	if err := c.ws.ReadJSON(&rep); err != nil {
		c.setState(arm, Faulted)
		return fmt.Errorf("%w: %s for %s arm", ErrTimeout, kind, arm)
	}
	if !rep.Ack {
		c.setState(arm, Faulted)
		return fmt.Errorf("%s for %s arm rejected (state %s)", kind, arm, rep.State)
	}
	c.setState(rep.Arm, parseState(rep.State))
	return nil
}

// EnablePartial brings the arm's motors to a holdable state without forcing
// a position jump. Safe to issue at any time.
func (c *Client) EnablePartial(arm string) error {
	return c.roundTrip(KindEnablePartial, arm)
}

// FullReset forces the arm to its reference position. The arm may move
// unexpectedly; callers must warn the operator before issuing it.
func (c *Client) FullReset(arm string) error {
	return c.roundTrip(KindFullReset, arm)
}

// RequestStatus queries the current motor state. Not all pairings support
// it; unsupported hosts nack and the arm is marked Faulted.
func (c *Client) RequestStatus(arm string) (MotorState, error) {
	if err := c.roundTrip(KindStatus, arm); err != nil {
		return Faulted, err
	}
	return c.State(arm), nil
}

// Close sends a best-effort quit and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.WriteJSON(Request{Kind: KindQuit, StampUS: time.Now().UnixMicro()})
	return c.ws.Close()
}
