// Package teleop runs the fixed-rate control loop: sample the leader arms,
// calibrate into follower joint space, stream commands over the channel.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkoenig/teleop/pkg/calib"
	"github.com/nkoenig/teleop/pkg/channel"
	"github.com/nkoenig/teleop/pkg/motorctl"
	"github.com/nkoenig/teleop/pkg/source"
)

// ErrFaultThreshold is returned by Start when a joint faults on enough
// consecutive ticks. The session stops commanding: sending a potentially
// wrong command is worse than sending none.
var ErrFaultThreshold = errors.New("consecutive sensor fault threshold exceeded")

// Phase is the control loop state.
type Phase int

const (
	Idle Phase = iota
	Running
	ShuttingDown
	Faulted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Counters are cumulative per-session event counts. They are observable
// but never interrupt the cadence.
type Counters struct {
	Drops        uint64 // frames conflated away by the channel
	Overruns     uint64 // ticks whose work exceeded the period
	SensorFaults uint64 // per-joint faulted reads
	Suppressed   uint64 // frames withheld because the arm's motors faulted
}

// State is one per-tick snapshot for displays.
type State struct {
	Positions map[string][]float64 // normalized joints per arm
	Seq       map[string]uint64
	Counters  Counters
	Timestamp time.Time
	Err       error
}

// MotorStates exposes the motor control channel's per-arm state to the
// loop. Only snapshots cross this boundary.
type MotorStates interface {
	State(arm string) motorctl.MotorState
}

// ArmConfig binds one leader arm to its calibration.
type ArmConfig struct {
	ID      string
	Source  source.Source
	Profile *calib.Profile
}

// Config assembles a session. Profiles must already be loaded and
// validated; a missing profile is a startup error upstream, never a
// default here.
type Config struct {
	Arms    []ArmConfig
	Channel channel.Channel
	Motors  MotorStates // optional

	Hz             int
	FaultThreshold int           // consecutive faulted ticks per joint; default 5
	ReadTimeout    time.Duration // per-arm sample budget; default one period
}

type armSession struct {
	id      string
	src     source.Source
	profile *calib.Profile

	seq      uint64
	lastGood []float64
	haveGood []bool
	faultRun []int // consecutive faulted ticks per joint
}

// Controller owns the session for the process duration.
type Controller struct {
	arms        []*armSession
	ch          channel.Channel
	motors      MotorStates
	period      time.Duration
	threshold   int
	readTimeout time.Duration

	mu       sync.Mutex
	phase    Phase
	counters Counters
	lastObs  map[string]channel.Observation

	stateCh chan State
	logCh   chan string
}

// New validates the configuration and builds an idle controller with all
// sequence counters at zero.
func New(cfg Config) (*Controller, error) {
	if len(cfg.Arms) == 0 {
		return nil, errors.New("no arms configured")
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	if cfg.FaultThreshold <= 0 {
		cfg.FaultThreshold = 5
	}
	period := time.Second / time.Duration(cfg.Hz)
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = period
	}
	c := &Controller{
		ch:          cfg.Channel,
		motors:      cfg.Motors,
		period:      period,
		threshold:   cfg.FaultThreshold,
		readTimeout: cfg.ReadTimeout,
		lastObs:     make(map[string]channel.Observation),
		stateCh:     make(chan State, 1),
		logCh:       make(chan string, 10),
	}
	for _, a := range cfg.Arms {
		if a.Profile == nil {
			return nil, fmt.Errorf("arm %q: %w", a.ID, calib.ErrMissing)
		}
		joints := a.Source.Joints()
		if err := a.Profile.Validate(joints); err != nil {
			return nil, err
		}
		c.arms = append(c.arms, &armSession{
			id:       a.ID,
			src:      a.Source,
			profile:  a.Profile,
			lastGood: make([]float64, joints),
			haveGood: make([]bool, joints),
			faultRun: make([]int, joints),
		})
	}
	return c, nil
}

// States returns the depth-1 snapshot channel; stale snapshots are
// replaced, never queued.
func (c *Controller) States() <-chan State { return c.stateCh }

// Logs returns the bounded log channel.
func (c *Controller) Logs() <-chan string { return c.logCh }

// Hz returns the configured control frequency.
func (c *Controller) Hz() int { return int(time.Second / c.period) }

// Phase returns the current loop phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// LastObservation returns the most recent observation for an arm, if one
// has ever arrived.
func (c *Controller) LastObservation(arm string) (channel.Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.lastObs[arm]
	return o, ok
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
	}
}

// Start runs the control loop until ctx is canceled (clean shutdown,
// returns nil) or the fault threshold is breached (returns
// ErrFaultThreshold). It may be called once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return fmt.Errorf("controller already started (phase %s)", c.phase)
	}
	c.phase = Running
	c.mu.Unlock()

	c.log("teleoperation started at %d Hz, %d arm(s)", c.Hz(), len(c.arms))

	for {
		// Cancellation is honored at tick boundaries only, so a
		// shutdown request takes effect within one period.
		if ctx.Err() != nil {
			c.setPhase(ShuttingDown)
			c.log("teleoperation stopped")
			c.ch.Close()
			return nil
		}

		tickStart := time.Now()
		if err := c.step(ctx); err != nil {
			c.setPhase(Faulted)
			c.log("session faulted: %v", err)
			c.sendState(State{Err: err, Timestamp: time.Now(), Counters: c.snapshotCounters()})
			return err
		}

		elapsed := time.Since(tickStart)
		if elapsed >= c.period {
			// Overran the period: start the next tick immediately,
			// never burst to catch up.
			c.mu.Lock()
			c.counters.Overruns++
			c.mu.Unlock()
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.period - elapsed):
		}
	}
}

func (c *Controller) step(ctx context.Context) error {
	samples := make([]source.Sample, len(c.arms))

	// Sample every arm concurrently with a per-read timeout so one slow
	// or faulty bus cannot starve the other arm's contribution.
	g, gctx := errgroup.WithContext(ctx)
	for i, arm := range c.arms {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, c.readTimeout)
			defer cancel()
			s, err := arm.src.Sample(sctx)
			if err != nil {
				// Device-level failure: mark every joint faulted
				// for this tick rather than aborting the session.
				s = source.Sample{
					Raw:   make([]int, arm.src.Joints()),
					Fault: allFaulted(arm.src.Joints()),
					Stamp: time.Now(),
				}
			}
			samples[i] = s
			return nil
		})
	}
	g.Wait()

	now := time.Now()
	positions := make(map[string][]float64, len(c.arms))
	seqs := make(map[string]uint64, len(c.arms))
	var tickFaults uint64

	type outgoing struct {
		arm *armSession
		cmd channel.Command
	}
	frames := make([]outgoing, 0, len(c.arms))

	for i, arm := range c.arms {
		s := samples[i]
		normalized := arm.profile.Normalize(s.Raw)
		for j := range normalized {
			if j < len(s.Fault) && s.Fault[j] {
				tickFaults++
				arm.faultRun[j]++
				if arm.haveGood[j] {
					normalized[j] = arm.lastGood[j]
				} else {
					normalized[j] = 0
				}
				if arm.faultRun[j] >= c.threshold {
					return fmt.Errorf("%w: arm %q joint %d faulted %d ticks",
						ErrFaultThreshold, arm.id, j, arm.faultRun[j])
				}
				continue
			}
			arm.faultRun[j] = 0
			arm.lastGood[j] = normalized[j]
			arm.haveGood[j] = true
		}
		positions[arm.id] = normalized
		seqs[arm.id] = arm.seq
		frames = append(frames, outgoing{arm, channel.Command{
			ArmID:   arm.id,
			Seq:     arm.seq,
			StampUS: s.Stamp.UnixMicro(),
			Joints:  normalized,
		}})
	}

	// Action first: transmit before anything else this tick.
	var drops, suppressed uint64
	for _, f := range frames {
		if c.motors != nil && c.motors.State(f.arm.id) == motorctl.Faulted {
			suppressed++
		} else if !c.ch.Send(f.cmd) {
			drops++
		}
		f.arm.seq++
	}

	// Best-effort observation poll; absence is the normal steady state.
	if o, ok := c.ch.Observation(); ok {
		c.mu.Lock()
		c.lastObs[o.ArmID] = o
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.counters.SensorFaults += tickFaults
	c.counters.Drops += drops
	c.counters.Suppressed += suppressed
	counters := c.counters
	c.mu.Unlock()

	c.sendState(State{
		Positions: positions,
		Seq:       seqs,
		Counters:  counters,
		Timestamp: now,
	})
	return nil
}

func (c *Controller) snapshotCounters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// Counters returns a snapshot of the session counters.
func (c *Controller) Counters() Counters { return c.snapshotCounters() }

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Replace the stale snapshot with the fresh one.
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

// Close releases the leader devices. The channel endpoint is closed by the
// loop itself on shutdown.
func (c *Controller) Close() error {
	var errs []error
	for _, arm := range c.arms {
		if err := arm.src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", arm.id, err))
		}
	}
	return errors.Join(errs...)
}

func allFaulted(n int) []bool {
	f := make([]bool, n)
	for i := range f {
		f[i] = true
	}
	return f
}
