package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/okonek/matchd/internal/adapters/signal"
	"github.com/okonek/matchd/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.GameWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"mode":     cfg.Mode,
			"capacity": cfg.Capacity,
			"sessions": ctl.Sessions(),
		})
	})

	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleGame(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")
	return r
}
