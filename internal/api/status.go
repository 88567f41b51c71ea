package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/api/models"
	"github.com/smazurov/camstream/internal/status"
)

func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Service, stream and host status. Never fails: unreadable sources report defaults.",
		Tags:        []string{"status"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.StatusResponse, error) {
		resp := &models.StatusResponse{}
		resp.Body.ServiceRunning = s.serviceRunning(ctx)
		resp.Body.StreamStatus = s.streamStatus(time.Now())
		if s.options.Stats != nil {
			resp.Body.SystemStats = s.options.Stats.Stats(ctx)
		}
		return resp, nil
	})
}

func (s *Server) serviceRunning(ctx context.Context) bool {
	if s.options.Services == nil || s.options.ServiceName == "" {
		return false
	}
	active, err := s.options.Services.IsActive(ctx, s.options.ServiceName)
	if err != nil {
		s.logger.Warn("Failed to query service state", "service", s.options.ServiceName, "error", err)
		return false
	}
	return active
}

// streamStatus reads the status file, which is authoritative across
// processes, and adds this process's session state when there is one.
func (s *Server) streamStatus(now time.Time) models.StreamStatus {
	st := status.Read(s.options.StatusPath)
	out := models.StreamStatus{
		Streaming:  st.Streaming,
		StartTime:  st.StartTime,
		Uptime:     status.FormatUptime(st.Uptime(now)),
		Resolution: st.Resolution,
		Framerate:  st.Framerate,
		Bitrate:    st.Bitrate,
	}
	if s.options.Session != nil {
		out.State = string(s.options.Session.Snapshot().State)
	}
	return out
}
