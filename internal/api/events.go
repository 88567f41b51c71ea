package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camstream/internal/events"
)

func (s *Server) registerSSERoutes() {
	if s.options.EventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Session state changes, stream faults, configuration changes and log lines. " +
			"The current session state is sent first.",
		Tags:     []string{"events"},
		Security: withAuth(),
		Errors:   []int{401},
	}, map[string]any{
		"state":  events.StateChangedEvent{},
		"fault":  events.StreamFaultEvent{},
		"config": events.ConfigChangedEvent{},
		"log":    events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		sub := s.options.EventBus.Stream(100)
		defer func() {
			sub.Close()
			if n := sub.Dropped(); n > 0 {
				s.logger.Warn("SSE client fell behind, events dropped", "dropped", n)
			}
		}()

		if s.options.Session != nil {
			snap := s.options.Session.Snapshot()
			initial := events.StateChangedEvent{
				State:     string(snap.State),
				Streaming: snap.Streaming(),
				Reason:    "connected",
				Timestamp: timestamp(),
			}
			if !snap.StartTime.IsZero() {
				initial.StartTime = snap.StartTime.Format(time.RFC3339)
			}
			if err := send.Data(initial); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sub.C:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
