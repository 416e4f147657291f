// README: Websocket stream of session updates plus Redis-backed live lookups.
package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"stride/internal/geo"
	"stride/internal/modules/session"
	"stride/internal/modules/tracking"
)

// LiveReader reads the latest published state, which may come from any API instance.
type LiveReader interface {
	Latest(ctx context.Context, sessionID string) (session.Update, error)
	Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]string, error)
}

type StreamHandler struct {
	hub      *tracking.Hub
	live     LiveReader
	upgrader websocket.Upgrader
}

func NewStreamHandler(hub *tracking.Hub, live LiveReader) *StreamHandler {
	return &StreamHandler{
		hub:  hub,
		live: live,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Stream upgrades to a websocket and forwards every update of the session.
func (h *StreamHandler) Stream(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		writeError(c, http.StatusBadRequest, "websocket upgrade required")
		return
	}
	client := h.hub.Register(c.Param("id"))
	defer h.hub.Unregister(client)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("stream: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(client)
	<-done
}

func (h *StreamHandler) Latest(c *gin.Context) {
	if h.live == nil {
		writeError(c, http.StatusServiceUnavailable, "live tracking unavailable")
		return
	}
	u, err := h.live.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

// Nearby lists sessions whose last position is within radius_km (default 1) of lat/lng.
func (h *StreamHandler) Nearby(c *gin.Context) {
	if h.live == nil {
		writeError(c, http.StatusServiceUnavailable, "live tracking unavailable")
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return
	}
	radius := 1.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	ids, err := h.live.Nearby(c.Request.Context(), geo.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"sessions": ids})
}
