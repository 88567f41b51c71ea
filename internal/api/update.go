package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/api/models"
)

func (s *Server) registerUpdateRoutes() {
	if s.options.Updater == nil {
		return
	}
	u := s.options.Updater

	huma.Register(s.api, huma.Operation{
		OperationID: "get-update-status",
		Method:      http.MethodGet,
		Path:        "/api/update/status",
		Summary:     "Get Update Status",
		Description: "Updater availability, last check and backup",
		Tags:        []string{"update"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		return &models.UpdateStatusResponse{Body: u.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "check-updates",
		Method:      http.MethodGet,
		Path:        "/api/update/check",
		Summary:     "Check for Updates",
		Description: "Check if a newer release is available without downloading it",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		rel, err := u.Check(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.UpdateCheckResponse{Body: rel}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-update",
		Method:      http.MethodPost,
		Path:        "/api/update/apply",
		Summary:     "Apply Update",
		Description: "Download and install the latest release, then restart",
		Tags:        []string{"update"},
		Errors:      []int{400, 401, 404, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.UpdateApplyResponse, error) {
		rel, err := u.Apply(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		s.restart()
		return &models.UpdateApplyResponse{
			Body: models.UpdateApplyData{Message: "Update applied, restarting...", Release: rel},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "rollback-update",
		Method:      http.MethodPost,
		Path:        "/api/update/rollback",
		Summary:     "Rollback Update",
		Description: "Restore the previous binary, then restart",
		Tags:        []string{"update"},
		Errors:      []int{401, 404, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := u.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		s.restart()
		resp := &models.MessageResponse{}
		resp.Body.Message = "Rollback complete, restarting..."
		return resp, nil
	})
}

func (s *Server) restart() {
	if s.options.Restart == nil {
		s.logger.Warn("Binary replaced; restart the service to run it")
		return
	}
	s.options.Restart()
}
