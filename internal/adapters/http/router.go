// Package http exposes the running session to a local rendering layer.
package http

import (
	"context"

	"github.com/dkeye/Meet/internal/app/media"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Commands is the part of the session the control API drives.
type Commands interface {
	Pin(ctx context.Context, id domain.UserID) (core.Arrangement, error)
	ToggleAudio(ctx context.Context) (bool, error)
	ToggleVideo(ctx context.Context) (bool, error)
	StartScreenShare(ctx context.Context) (media.Report, error)
	StopScreenShare(ctx context.Context) (media.Report, error)
	SendChat(ctx context.Context, text string) error
	Leave(ctx context.Context) error
}

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id, reusing the
// caller's when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, cmds Commands, board *Board) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	h := &handlers{cmds: cmds, board: board}

	api := r.Group("/api")
	api.GET("/view", h.view)
	api.GET("/notices", h.notices)
	api.GET("/streams", h.streams)
	api.POST("/pin/:id", h.pin)
	api.POST("/media/audio", h.toggleAudio)
	api.POST("/media/video", h.toggleVideo)
	api.POST("/screen/start", h.startScreen)
	api.POST("/screen/stop", h.stopScreen)
	api.POST("/chat", h.chat)
	api.POST("/leave", h.leave)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
