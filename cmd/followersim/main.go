// Command followersim is a loopback follower host: it accepts command
// frames, tracks a simulated pose with first-order lag, publishes
// observations, and acknowledges motor control commands. Useful for bench
// runs and demos without robot hardware.
package main

import (
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nkoenig/teleop/pkg/channel"
	"github.com/nkoenig/teleop/pkg/motorctl"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type armState struct {
	target  []float64
	pose    []float64
	lastSeq uint64
	seqEcho uint64
	haveSeq bool
	motors  motorctl.MotorState
}

type Simulator struct {
	mu   sync.Mutex
	arms map[string]*armState

	rate time.Duration
	lag  float64 // fraction of the error closed per tick
}

func NewSimulator(hz int, lag float64) *Simulator {
	s := &Simulator{
		arms: make(map[string]*armState),
		rate: time.Second / time.Duration(hz),
		lag:  lag,
	}
	go s.run()
	return s
}

func (s *Simulator) arm(id string, joints int) *armState {
	a, ok := s.arms[id]
	if !ok {
		a = &armState{motors: motorctl.Disabled}
		s.arms[id] = a
	}
	if len(a.target) < joints {
		a.target = append(a.target, make([]float64, joints-len(a.target))...)
		a.pose = append(a.pose, make([]float64, joints-len(a.pose))...)
	}
	return a
}

// run moves each simulated pose toward its commanded target.
func (s *Simulator) run() {
	for range time.Tick(s.rate) {
		s.mu.Lock()
		for _, a := range s.arms {
			for i := range a.pose {
				a.pose[i] += s.lag * (a.target[i] - a.pose[i])
			}
		}
		s.mu.Unlock()
	}
}

func (s *Simulator) handleCommands(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()
	log.Printf("command client connected: %s", r.RemoteAddr)

	for {
		var cmd channel.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			log.Printf("command client gone: %v", err)
			return
		}
		s.mu.Lock()
		a := s.arm(cmd.ArmID, len(cmd.Joints))
		// The sender makes no retransmission guarantee; out-of-order
		// and duplicate frames are discarded here.
		if a.haveSeq && cmd.Seq <= a.lastSeq {
			s.mu.Unlock()
			continue
		}
		a.lastSeq = cmd.Seq
		a.seqEcho = cmd.Seq
		a.haveSeq = true
		copy(a.target, cmd.Joints)
		s.mu.Unlock()
	}
}

func (s *Simulator) handleObservations(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()
	log.Printf("observation client connected: %s", r.RemoteAddr)

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		frames := make([]channel.Observation, 0, len(s.arms))
		for id, a := range s.arms {
			frames = append(frames, channel.Observation{
				ArmID:   id,
				SeqEcho: a.seqEcho,
				StampUS: time.Now().UnixMicro(),
				Joints:  append([]float64(nil), a.pose...),
			})
		}
		s.mu.Unlock()
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				log.Printf("observation client gone: %v", err)
				return
			}
		}
	}
}

func (s *Simulator) handleMotors(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()
	log.Printf("motor client connected: %s", r.RemoteAddr)

	for {
		var req motorctl.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Kind == motorctl.KindQuit {
			return
		}

		s.mu.Lock()
		a := s.arm(req.Arm, 0)
		var state motorctl.MotorState
		ack := true
		switch req.Kind {
		case motorctl.KindEnablePartial:
			if a.motors != motorctl.FullyEnabled {
				a.motors = motorctl.PartiallyEnabled
			}
			state = a.motors
		case motorctl.KindFullReset:
			for i := range a.pose {
				a.pose[i] = 0
				a.target[i] = 0
			}
			a.motors = motorctl.FullyEnabled
			state = a.motors
		case motorctl.KindStatus:
			state = a.motors
		default:
			ack = false
		}
		s.mu.Unlock()

		reply := motorctl.Reply{Ack: ack, Arm: req.Arm, State: state.String()}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		log.Printf("motor command %s for %s arm -> %s", req.Kind, req.Arm, state)
	}
}

func main() {
	listen := flag.String("listen", ":5555", "listen address")
	hz := flag.Int("hz", 60, "observation publish rate")
	lag := flag.Float64("lag", 0.2, "fraction of pose error closed per tick")
	flag.Parse()

	sim := NewSimulator(*hz, *lag)

	r := mux.NewRouter()
	r.HandleFunc("/commands", sim.handleCommands)
	r.HandleFunc("/observations", sim.handleObservations)
	r.HandleFunc("/motors", sim.handleMotors)

	log.Printf("follower simulator listening on %s", *listen)
	log.Fatal(http.ListenAndServe(*listen, r))
}
