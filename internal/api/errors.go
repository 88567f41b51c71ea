package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camstream/internal/session"
	"github.com/smazurov/camstream/internal/streamconfig"
	"github.com/smazurov/camstream/internal/systemd"
	"github.com/smazurov/camstream/internal/updater"
)

// mapError converts domain errors to huma status errors.
func mapError(err error) error {
	var verr *streamconfig.ValidationError
	var cmdErr *systemd.CommandError
	switch {
	case errors.As(err, &verr):
		return huma.Error400BadRequest(verr.Error())
	case errors.Is(err, streamconfig.ErrValidation):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, session.ErrAlreadyActive),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrTransition):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, session.ErrShuttingDown):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, systemd.ErrUnknownVerb):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &cmdErr):
		return huma.Error500InternalServerError(cmdErr.Error())
	}
	return mapUpdateError(err)
}

// mapUpdateError converts updater errors to huma status errors.
func mapUpdateError(err error) error {
	var uerr *updater.Error
	if errors.As(err, &uerr) {
		switch uerr.Code {
		case updater.ErrCodeNoUpdate:
			return huma.Error400BadRequest(uerr.Message)
		case updater.ErrCodeNotFound, updater.ErrCodeNoBackup:
			return huma.Error404NotFound(uerr.Message)
		case updater.ErrCodeDisabled:
			return huma.Error503ServiceUnavailable(uerr.Message)
		default:
			return huma.Error500InternalServerError(uerr.Message)
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
