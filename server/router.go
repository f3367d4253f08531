package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(logger))

	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/remove-background", h.RemoveBackground)
		api.POST("/remove-background/url", h.RemoveBackgroundURL)
		api.GET("/results/:id", h.GetResult)
	}

	return r
}
