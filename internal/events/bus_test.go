package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})
	defer unsub()

	event := StateChangedEvent{
		State:     "streaming",
		Previous:  "starting",
		Streaming: true,
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got != event {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_NilBusDropsEvents(_ *testing.T) {
	var bus *Bus
	bus.Publish(StateChangedEvent{State: "idle"})
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan StreamFaultEvent, 1)
	received2 := make(chan StreamFaultEvent, 1)

	unsub1 := bus.Subscribe(func(e StreamFaultEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e StreamFaultEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(StreamFaultEvent{Source: "publish", ExitCode: 1})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ConfigChangedEvent, 1)

	unsub := bus.Subscribe(func(e ConfigChangedEvent) {
		received <- e
	})

	bus.Publish(ConfigChangedEvent{Source: "api"})
	<-received

	unsub()

	bus.Publish(ConfigChangedEvent{Source: "file"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	stateReceived := make(chan bool, 1)
	faultReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ StateChangedEvent) { stateReceived <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ StreamFaultEvent) { faultReceived <- true })
	defer unsub2()

	bus.Publish(StateChangedEvent{State: "idle"})
	<-stateReceived

	select {
	case <-faultReceived:
		t.Fatal("Fault subscriber should NOT have received StateChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(StreamFaultEvent{Source: "capture"})
	<-faultReceived

	select {
	case <-stateReceived:
		t.Fatal("State subscriber should NOT have received StreamFaultEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ LogEntryEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(LogEntryEvent{
					Level:     "info",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name   string
		event  any
		want   []string
		absent []string
	}{
		{
			name:   "idle state",
			event:  StateChangedEvent{State: "idle", Previous: "stopping", Timestamp: "2025-01-27T10:30:00Z"},
			want:   []string{"state", "previous", "streaming", "timestamp"},
			absent: []string{"start_time", "reason"},
		},
		{
			name:  "fault",
			event: StreamFaultEvent{Source: "publish", ExitCode: 1, Error: "exit status 1"},
			want:  []string{"source", "exit_code", "error"},
		},
		{
			name:   "log entry",
			event:  LogEntryEvent{Seq: 1, Level: "info", Module: "session", Message: "Streaming started"},
			want:   []string{"seq", "level", "module", "message"},
			absent: []string{"attributes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}
			for _, key := range tt.want {
				if _, ok := result[key]; !ok {
					t.Errorf("missing %q in %s", key, data)
				}
			}
			for _, key := range tt.absent {
				if _, ok := result[key]; ok {
					t.Errorf("unexpected %q in %s", key, data)
				}
			}
		})
	}
}

func TestStreamForwardsLiveEventTypes(t *testing.T) {
	bus := New()
	sub := bus.Stream(10)
	defer sub.Close()

	bus.Publish(StateChangedEvent{State: "streaming", Streaming: true})
	bus.Publish(StreamFaultEvent{Source: "publish"})
	bus.Publish(ConfigChangedEvent{Source: "file"})
	bus.Publish(LogEntryEvent{Message: "hello"})

	var got []string
	for range 4 {
		select {
		case e := <-sub.C:
			switch ev := e.(type) {
			case StateChangedEvent:
				if !ev.IsStreaming() {
					t.Error("Expected streaming to be true")
				}
				got = append(got, "state")
			case StreamFaultEvent:
				got = append(got, "fault")
			case ConfigChangedEvent:
				got = append(got, "config")
			case LogEntryEvent:
				got = append(got, "log")
			default:
				t.Fatalf("unexpected %T", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("only received %v", got)
		}
	}
}

func TestStreamDropsWhenFull(t *testing.T) {
	bus := New()
	sub := bus.Stream(1)
	defer sub.Close()

	for range 3 {
		bus.Publish(LogEntryEvent{Message: "hello"})
	}

	// delivery is asynchronous
	deadline := time.Now().Add(time.Second)
	for sub.Dropped() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sub.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if len(sub.C) != 1 {
		t.Errorf("pending = %d, want 1", len(sub.C))
	}
}

func TestStreamClose(t *testing.T) {
	bus := New()
	sub := bus.Stream(4)
	sub.Close()
	sub.Close()

	bus.Publish(StateChangedEvent{State: "idle"})
	select {
	case e := <-sub.C:
		t.Fatalf("received %T after Close", e)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestStreamNilBus(t *testing.T) {
	var bus *Bus
	sub := bus.Stream(1)
	sub.Close()
	if sub.Dropped() != 0 {
		t.Error("nil bus subscription should be empty")
	}
}
