package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/viperadnan-git/tubestash/internal/client/api/response"
)

func NewRouter(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/status", h.Status)

	g.GET("/videos", h.ListVideos)
	g.POST("/videos", h.Enqueue)
	g.GET("/videos/:id", h.GetVideo)
	g.DELETE("/videos/:id", h.DeleteVideo)
	g.POST("/videos/:id/cancel", h.Cancel)
	g.POST("/videos/:id/watched", h.MarkWatched)

	g.POST("/sync", h.Sync)
	g.POST("/retry-connection", h.RetryConnection)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.UpdateSettings)
	g.POST("/reset", h.Reset)
	g.GET("/disk-usage", h.DiskUsage)

	return e
}
