package models

import "github.com/smazurov/camstream/internal/updater"

type UpdateCheckResponse struct {
	Body updater.Release
}

type UpdateStatusResponse struct {
	Body updater.Status
}

// UpdateApplyData reports an applied update.
type UpdateApplyData struct {
	Message string          `json:"message" example:"Update applied, restarting..." doc:"Status message"`
	Release updater.Release `json:"release"`
}

type UpdateApplyResponse struct {
	Body UpdateApplyData
}

// MessageResponse carries a plain status message.
type MessageResponse struct {
	Body struct {
		Message string `json:"message" example:"Rollback complete, restarting..." doc:"Status message"`
	}
}
