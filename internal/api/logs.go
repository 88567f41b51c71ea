package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/api/models"
	"github.com/smazurov/camstream/internal/logging"
)

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Trailing lines of the durable stream log",
		Tags:        []string{"logs"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		if s.options.LogFile == "" {
			return &models.LogsResponse{Body: models.LogsData{Logs: logging.NoLogsMessage}}, nil
		}
		logs, err := logging.Tail(s.options.LogFile, input.Lines)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read logs", err)
		}
		return &models.LogsResponse{Body: models.LogsData{Logs: logs}}, nil
	})
}
