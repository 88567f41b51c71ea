package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/api/models"
)

func (s *Server) registerStreamRoutes() {
	if s.options.Session == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/start",
		Summary:     "Start Stream",
		Description: "Start the streaming session. Returns once the warm-up has passed; 409 if a session is already active.",
		Tags:        []string{"stream"},
		Errors:      []int{401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.StreamActionResponse, error) {
		// a client hanging up must not abort the start half way
		if err := s.options.Session.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, mapError(err)
		}
		return s.streamAction(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/stop",
		Summary:     "Stop Stream",
		Description: "Stop the streaming session; 409 if no session is active.",
		Tags:        []string{"stream"},
		Errors:      []int{401, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.StreamActionResponse, error) {
		if err := s.options.Session.Stop(context.WithoutCancel(ctx)); err != nil {
			return nil, mapError(err)
		}
		return s.streamAction(), nil
	})
}

func (s *Server) streamAction() *models.StreamActionResponse {
	return &models.StreamActionResponse{
		Body: models.StreamActionData{
			Success: true,
			State:   string(s.options.Session.Snapshot().State),
		},
	}
}
