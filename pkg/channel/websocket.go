package channel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Config holds the transport endpoints for one session. An empty
// ObservationURL declares a unidirectional pairing: observation polls are
// no-ops.
type Config struct {
	CommandURL     string
	ObservationURL string
}

// Conn is the websocket Channel implementation. Outbound commands go
// through a depth-1 conflating mailbox drained by a write pump, so a slow
// receiver costs dropped frames, never latency.
type Conn struct {
	cmd *websocket.Conn
	obs *websocket.Conn

	out      chan Command
	in       chan Observation
	done     chan struct{}
	closeOne sync.Once
	drops    atomic.Uint64
	sendErr  atomic.Uint64
}

// Dial connects the command socket and, for bidirectional pairings, the
// observation socket.
func Dial(cfg Config) (*Conn, error) {
	cmd, _, err := websocket.DefaultDialer.Dial(cfg.CommandURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial command channel %s: %w", cfg.CommandURL, err)
	}
	c := &Conn{
		cmd:  cmd,
		out:  make(chan Command, 1),
		in:   make(chan Observation, 1),
		done: make(chan struct{}),
	}
	if cfg.ObservationURL != "" {
		obs, _, err := websocket.DefaultDialer.Dial(cfg.ObservationURL, nil)
		if err != nil {
			cmd.Close()
			return nil, fmt.Errorf("dial observation channel %s: %w", cfg.ObservationURL, err)
		}
		c.obs = obs
		go c.readPump()
	}
	go c.writePump()
	return c, nil
}

// Send queues the frame for transmission. If an older frame is still
// buffered it is evicted in favor of the new one and Send returns false.
func (c *Conn) Send(f Command) bool {
	select {
	case c.out <- f:
		return true
	default:
	}
	// Mailbox full: evict the stale frame, keep the newest.
	select {
	case <-c.out:
	default:
	}
	select {
	case c.out <- f:
	default:
	}
	c.drops.Add(1)
	return false
}

// Observation returns the most recent unread observation, if any.
func (c *Conn) Observation() (Observation, bool) {
	select {
	case o := <-c.in:
		return o, true
	default:
		return Observation{}, false
	}
}

// Drops returns the number of frames lost to mailbox conflation.
func (c *Conn) Drops() uint64 { return c.drops.Load() }

// SendErrors returns the number of frames lost to transport write failures.
func (c *Conn) SendErrors() uint64 { return c.sendErr.Load() }

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			if err := c.cmd.WriteJSON(f); err != nil {
				c.sendErr.Add(1)
			}
		}
	}
}

func (c *Conn) readPump() {
	for {
		var o Observation
		if err := c.obs.ReadJSON(&o); err != nil {
			return
		}
		// Conflate: keep only the newest observation.
		select {
		case c.in <- o:
		default:
			select {
			case <-c.in:
			default:
			}
			select {
			case c.in <- o:
			default:
			}
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOne.Do(func() {
		close(c.done)
		err = c.cmd.Close()
		if c.obs != nil {
			if oerr := c.obs.Close(); err == nil {
				err = oerr
			}
		}
	})
	return err
}
