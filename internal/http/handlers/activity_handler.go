// README: Saved routes and finished activities.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stride/internal/modules/session"
	"stride/internal/service"
)

// ActivityReader is the read side of the activity store.
type ActivityReader interface {
	GetActivity(ctx context.Context, id string) (session.ActivityRecord, error)
	ListActivities(ctx context.Context, routeID string, limit int) ([]session.ActivityRecord, error)
}

type ActivityHandler struct {
	workspace  *service.Workspace
	activities ActivityReader
}

func NewActivityHandler(ws *service.Workspace, activities ActivityReader) *ActivityHandler {
	return &ActivityHandler{workspace: ws, activities: activities}
}

func (h *ActivityHandler) GetRoute(c *gin.Context) {
	r, err := h.workspace.Route(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *ActivityHandler) Get(c *gin.Context) {
	if h.activities == nil {
		writeError(c, http.StatusServiceUnavailable, "activity store unavailable")
		return
	}
	rec, err := h.activities.GetActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

// List returns recent activities, optionally filtered by route_id.
func (h *ActivityHandler) List(c *gin.Context) {
	if h.activities == nil {
		writeError(c, http.StatusServiceUnavailable, "activity store unavailable")
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := h.activities.ListActivities(c.Request.Context(), c.Query("route_id"), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if recs == nil {
		recs = []session.ActivityRecord{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"activities": recs})
}
