// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stride/internal/http/handlers"
	"stride/internal/http/middleware"
	"stride/internal/modules/session"
	"stride/internal/modules/tracking"
	"stride/internal/service"
)

type RouterDeps struct {
	Workspace  *service.Workspace
	Tracker    *service.Tracker
	Hub        *tracking.Hub
	Live       handlers.LiveReader
	Activities handlers.ActivityReader
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")

	paths := handlers.NewPathHandler(deps.Workspace)
	api.POST("/paths", paths.Create)
	api.GET("/paths/:id", paths.Get)
	api.GET("/paths/:id/geojson", paths.GeoJSON)
	api.POST("/paths/:id/points", paths.AddPoint)
	api.PUT("/paths/:id/points/:index", paths.MovePoint)
	api.DELETE("/paths/:id/points/:index", paths.DeletePoint)
	api.POST("/paths/:id/strokes", paths.AddStroke)
	api.POST("/paths/:id/undo", paths.Undo)
	api.POST("/paths/:id/clear", paths.Clear)
	api.POST("/paths/:id/close", paths.CloseLoop)
	api.POST("/paths/:id/save", paths.Save)

	sessions := handlers.NewSessionHandler(deps.Workspace, deps.Tracker)
	api.POST("/sessions", sessions.Create)
	api.GET("/sessions/:id", sessions.Get)
	api.POST("/sessions/:id/samples", sessions.Sample)
	api.POST("/sessions/:id/pause", sessions.Control(session.ActionPause))
	api.POST("/sessions/:id/resume", sessions.Control(session.ActionResume))
	api.POST("/sessions/:id/finish", sessions.Control(session.ActionFinish))
	api.POST("/sessions/:id/cancel", sessions.Control(session.ActionCancel))

	stream := handlers.NewStreamHandler(deps.Hub, deps.Live)
	api.GET("/sessions/:id/ws", stream.Stream)
	api.GET("/tracking/nearby", stream.Nearby)
	api.GET("/tracking/sessions/:id", stream.Latest)

	activities := handlers.NewActivityHandler(deps.Workspace, deps.Activities)
	api.GET("/routes/:id", activities.GetRoute)
	api.GET("/activities", activities.List)
	api.GET("/activities/:id", activities.Get)

	return r
}
