package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/api/models"
)

func (s *Server) registerControlRoutes() {
	if s.options.Services == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "control-service",
		Method:      http.MethodPost,
		Path:        "/api/control/{action}",
		Summary:     "Control Service",
		Description: "Run a service manager verb against the streamer unit, or reboot the host. " +
			"Failures carry the command's standard error.",
		Tags:     []string{"control"},
		Errors:   []int{401, 422, 500},
		Security: withAuth(),
	}, func(ctx context.Context, input *models.ControlRequest) (*models.ControlResponse, error) {
		s.logger.Info("Service control requested", "action", input.Action, "service", s.options.ServiceName)
		if err := s.options.Services.Run(ctx, input.Action, s.options.ServiceName); err != nil {
			return nil, mapError(err)
		}
		return &models.ControlResponse{
			Body: models.ControlData{
				Success: true,
				Action:  input.Action,
				Service: s.options.ServiceName,
			},
		}, nil
	})
}
