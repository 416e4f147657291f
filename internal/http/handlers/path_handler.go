// README: Path editing handlers; every mutation answers with the resulting path.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stride/internal/geo"
	"stride/internal/modules/activity"
	"stride/internal/modules/path"
	"stride/internal/service"
)

type PathHandler struct {
	workspace *service.Workspace
}

func NewPathHandler(ws *service.Workspace) *PathHandler {
	return &PathHandler{workspace: ws}
}

type pathResponse struct {
	ID             string         `json:"id"`
	Revision       uint64         `json:"revision"`
	Segments       []path.Segment `json:"segments"`
	Points         []geo.Point    `json:"points"`
	DistanceKm     float64        `json:"distance_km"`
	ElevationGainM int            `json:"elevation_gain_m"`
	CanUndo        bool           `json:"can_undo"`
}

type pointReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (r pointReq) point() (geo.Point, bool) {
	if r.Lat == nil || r.Lng == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *r.Lat, Lng: *r.Lng}, true
}

type strokeReq struct {
	Points []geo.Point `json:"points"`
}

type saveReq struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	Tags        []string `json:"tags"`
}

func (h *PathHandler) Create(c *gin.Context) {
	id, b := h.workspace.Create()
	writeJSON(c, http.StatusCreated, render(id, b))
}

func (h *PathHandler) Get(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, render(id, b))
}

// GeoJSON exports the flattened path as a LineString feature plus one Point per anchor.
func (h *PathHandler) GeoJSON(c *gin.Context) {
	_, b, ok := h.builder(c)
	if !ok {
		return
	}
	body, err := b.Path().FeatureCollection().MarshalJSON()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

func (h *PathHandler) AddPoint(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	var req pointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, ok := req.point()
	if !ok {
		writeError(c, http.StatusBadRequest, "missing lat/lng")
		return
	}
	h.apply(c, id, b, path.AddPointCommand{Point: p})
}

func (h *PathHandler) AddStroke(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	var req strokeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	h.apply(c, id, b, path.FreehandCommand{Points: req.Points})
}

func (h *PathHandler) MovePoint(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	index, ok := pointIndex(c)
	if !ok {
		return
	}
	var req pointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, ok := req.point()
	if !ok {
		writeError(c, http.StatusBadRequest, "missing lat/lng")
		return
	}
	h.apply(c, id, b, path.MovePointCommand{Index: index, Point: p})
}

func (h *PathHandler) DeletePoint(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	index, ok := pointIndex(c)
	if !ok {
		return
	}
	h.apply(c, id, b, path.DeletePointCommand{Index: index})
}

func (h *PathHandler) Undo(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	h.apply(c, id, b, path.UndoCommand{})
}

func (h *PathHandler) Clear(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	h.apply(c, id, b, path.ClearCommand{})
}

func (h *PathHandler) CloseLoop(c *gin.Context) {
	id, b, ok := h.builder(c)
	if !ok {
		return
	}
	h.apply(c, id, b, path.CloseLoopCommand{})
}

func (h *PathHandler) Save(c *gin.Context) {
	id, _, ok := h.builder(c)
	if !ok {
		return
	}
	var req saveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	route, err := h.workspace.Save(c.Request.Context(), id, activity.Route{
		Name:        req.Name,
		Description: req.Description,
		Difficulty:  activity.Difficulty(req.Difficulty),
		Tags:        req.Tags,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, route)
}

func (h *PathHandler) builder(c *gin.Context) (string, *path.Builder, bool) {
	id := c.Param("id")
	b, err := h.workspace.Get(id)
	if err != nil {
		writeServiceError(c, err)
		return "", nil, false
	}
	return id, b, true
}

// apply runs one edit and answers with the resulting path.
func (h *PathHandler) apply(c *gin.Context, id string, b *path.Builder, cmd path.Command) {
	if err := b.Apply(c.Request.Context(), cmd); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, render(id, b))
}

func pointIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid index")
		return 0, false
	}
	return index, true
}

func render(id string, b *path.Builder) pathResponse {
	p, rev := b.Snapshot()
	segments := p.Segments()
	if segments == nil {
		segments = []path.Segment{}
	}
	points := p.Flatten()
	if points == nil {
		points = []geo.Point{}
	}
	return pathResponse{
		ID:             id,
		Revision:       rev,
		Segments:       segments,
		Points:         points,
		DistanceKm:     p.TotalDistanceKm(),
		ElevationGainM: p.EstimatedElevationGainM(),
		CanUndo:        b.CanUndo(),
	}
}
