// README: Live session handlers; start, samples, control actions and state.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stride/internal/geo"
	"stride/internal/modules/activity"
	"stride/internal/modules/path"
	"stride/internal/modules/session"
	"stride/internal/service"
)

type SessionHandler struct {
	workspace *service.Workspace
	tracker   *service.Tracker
}

func NewSessionHandler(ws *service.Workspace, tracker *service.Tracker) *SessionHandler {
	return &SessionHandler{workspace: ws, tracker: tracker}
}

type createSessionReq struct {
	PathID      string `json:"path_id"`
	RouteID     string `json:"route_id"`
	DeviceToken string `json:"device_token"`
}

type sampleReq struct {
	Lat *float64  `json:"lat"`
	Lng *float64  `json:"lng"`
	At  time.Time `json:"at"`
}

type finishResponse struct {
	Update session.Update         `json:"update"`
	Record session.ActivityRecord `json:"record"`
}

// Create starts a session along an in-progress path or a saved route.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	var (
		route path.Path
		opts  = service.StartOptions{DeviceToken: req.DeviceToken}
	)
	switch {
	case req.PathID != "":
		b, err := h.workspace.Get(req.PathID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		route = b.Path()
	case req.RouteID != "":
		saved, err := h.workspace.Route(c.Request.Context(), req.RouteID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		route = activity.RoutePath(saved)
		opts.RouteID = saved.ID
		opts.RouteName = saved.Name
	default:
		writeError(c, http.StatusBadRequest, "missing path_id or route_id")
		return
	}

	_, u, err := h.tracker.Start(route, opts)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, u)
}

func (h *SessionHandler) Get(c *gin.Context) {
	r, ok := h.runner(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, r.Session().Snapshot())
}

// Sample queues a position fix. Samples outside the Active state are accepted and ignored.
func (h *SessionHandler) Sample(c *gin.Context) {
	r, ok := h.runner(c)
	if !ok {
		return
	}
	var req sampleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "missing lat/lng")
		return
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	err := r.Submit(c.Request.Context(), session.Sample{Point: geo.Point{Lat: *req.Lat, Lng: *req.Lng}, At: at})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// Control returns a handler applying one action to the session.
func (h *SessionHandler) Control(action session.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := h.runner(c)
		if !ok {
			return
		}
		u, rec, err := r.Do(c.Request.Context(), action)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		if rec != nil {
			writeJSON(c, http.StatusOK, finishResponse{Update: u, Record: *rec})
			return
		}
		writeJSON(c, http.StatusOK, u)
	}
}

func (h *SessionHandler) runner(c *gin.Context) (*session.Runner, bool) {
	r, err := h.tracker.Get(c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	return r, true
}
