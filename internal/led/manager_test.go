package led

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camstream/internal/events"
)

type mockController struct {
	mu       sync.Mutex
	setCalls []setCall
}

type setCall struct {
	ledType string
	enabled bool
	pattern string
}

func (m *mockController) Set(ledType string, enabled bool, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls = append(m.setCalls, setCall{ledType, enabled, pattern})
	return nil
}

func (m *mockController) Available() []string { return []string{StatusLED} }

func (m *mockController) Patterns() []string { return []string{"solid", "blink"} }

func (m *mockController) waitFor(t *testing.T, want setCall) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		n := len(m.setCalls)
		var last setCall
		if n > 0 {
			last = m.setCalls[n-1]
		}
		m.mu.Unlock()
		if last == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("LED never set to %+v", want)
}

func TestManager_FollowsSessionState(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()

	mgr := NewManager(ctrl, bus, discardLogger())
	mgr.Start()
	defer mgr.Stop()

	ctrl.waitFor(t, setCall{StatusLED, false, ""})

	steps := []struct {
		state string
		want  setCall
	}{
		{"starting", setCall{StatusLED, true, "blink"}},
		{"streaming", setCall{StatusLED, true, "solid"}},
		{"stopping", setCall{StatusLED, true, "blink"}},
		{"idle", setCall{StatusLED, false, ""}},
		{"failed", setCall{StatusLED, true, "heartbeat"}},
	}
	for _, step := range steps {
		bus.Publish(events.StateChangedEvent{State: step.state, Streaming: step.state == "streaming"})
		ctrl.waitFor(t, step.want)
	}
}

func TestManager_SkipsRepeatedState(t *testing.T) {
	ctrl := &mockController{}
	mgr := NewManager(ctrl, events.New(), discardLogger())

	mgr.handleEvent(events.StateChangedEvent{State: "streaming"})
	mgr.handleEvent(events.StateChangedEvent{State: "streaming"})

	if len(ctrl.setCalls) != 1 {
		t.Errorf("got %d LED writes, want 1", len(ctrl.setCalls))
	}
}

func TestManager_GetController(t *testing.T) {
	ctrl := &mockController{}
	mgr := NewManager(ctrl, events.New(), discardLogger())

	if got := mgr.GetController(); got != ctrl {
		t.Error("GetController() did not return the original controller")
	}
}
