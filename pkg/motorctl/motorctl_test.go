package motorctl

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// ackServer acks everything with the given state; if silentArm matches the
// request it never replies.
func ackServer(t *testing.T, state string, silentArm string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var req Request
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			if req.Kind == KindQuit {
				return
			}
			if req.Arm == silentArm {
				continue // no ack: simulate a dead follower host
			}
			ws.WriteJSON(Reply{Ack: true, Arm: req.Arm, State: state})
		}
	}))
}

func TestEnablePartial_AckUpdatesState(t *testing.T) {
	srv := ackServer(t, "partially_enabled", "")
	defer srv.Close()

	c, err := Dial(wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.EnablePartial("left"); err != nil {
		t.Fatal(err)
	}
	if got := c.State("left"); got != PartiallyEnabled {
		t.Errorf("State(left) = %s, want partially_enabled", got)
	}
	if got := c.State("right"); got != Disabled {
		t.Errorf("State(right) = %s, want disabled (untouched)", got)
	}
}

func TestFullReset_TimeoutFaultsOnlyThatArm(t *testing.T) {
	srv := ackServer(t, "fully_enabled", "left")
	defer srv.Close()

	c, err := Dial(wsURL(srv.URL), 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// Right arm acks normally first.
	if err := c.FullReset("right"); err != nil {
		t.Fatal(err)
	}

	err = c.FullReset("left")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if got := c.State("left"); got != Faulted {
		t.Errorf("State(left) = %s, want faulted", got)
	}
	if got := c.State("right"); got != FullyEnabled {
		t.Errorf("State(right) = %s, want fully_enabled (unaffected)", got)
	}
}

func TestRequestStatus(t *testing.T) {
	srv := ackServer(t, "disabled", "")
	defer srv.Close()

	c, err := Dial(wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	state, err := c.RequestStatus("right")
	if err != nil {
		t.Fatal(err)
	}
	if state != Disabled {
		t.Errorf("status = %s, want disabled", state)
	}
}

func TestNack_FaultsArm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var req Request
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			if req.Kind == KindQuit {
				return
			}
			ws.WriteJSON(Reply{Ack: false, Arm: req.Arm, State: "disabled"})
		}
	}))
	defer srv.Close()

	c, err := Dial(wsURL(srv.URL), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.EnablePartial("left"); err == nil {
		t.Fatal("expected error on nack")
	}
	if got := c.State("left"); got != Faulted {
		t.Errorf("State(left) = %s, want faulted", got)
	}
}

func TestMotorState_String(t *testing.T) {
	tests := []struct {
		state MotorState
		want  string
	}{
		{Disabled, "disabled"},
		{PartiallyEnabled, "partially_enabled"},
		{FullyEnabled, "fully_enabled"},
		{Faulted, "faulted"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
	if parseState("nonsense") != Faulted {
		t.Error("unknown state strings must parse as faulted")
	}
}
