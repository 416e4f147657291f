// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stride/internal/modules/activity"
	"stride/internal/modules/path"
	"stride/internal/modules/session"
	"stride/internal/modules/tracking"
	"stride/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, activity.ErrNotFound), errors.Is(err, tracking.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, activity.ErrBadRequest), errors.Is(err, path.ErrIndexOutOfRange),
		errors.Is(err, path.ErrTooFewPoints), errors.Is(err, session.ErrUnknownAction):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, path.ErrNothingToUndo):
		writeError(c, http.StatusConflict, "nothing to undo")
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrFinished):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
