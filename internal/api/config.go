package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/api/models"
	"github.com/smazurov/camstream/internal/events"
)

func (s *Server) registerConfigRoutes() {
	if s.options.Config == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/api/config",
		Summary:     "Get Config",
		Description: "Current stream configuration, defaults filled in",
		Tags:        []string{"config"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ConfigResponse, error) {
		return &models.ConfigResponse{Body: s.options.Config.Current()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-config",
		Method:      http.MethodPost,
		Path:        "/api/config",
		Summary:     "Update Config",
		Description: "Merge the given fields onto the current configuration and persist it. " +
			"A running session keeps the configuration it started with.",
		Tags:     []string{"config"},
		Errors:   []int{400, 401, 500},
		Security: withAuth(),
	}, func(_ context.Context, input *models.ConfigUpdateRequest) (*models.ConfigUpdateResponse, error) {
		cfg, err := s.options.Config.Save(input.Body)
		if err != nil {
			return nil, mapError(err)
		}

		s.options.EventBus.Publish(events.ConfigChangedEvent{
			Source:    "api",
			Endpoint:  cfg.Redacted(),
			Timestamp: timestamp(),
		})
		return &models.ConfigUpdateResponse{
			Body: models.ConfigUpdateData{Success: true, Config: cfg},
		}, nil
	})
}
