package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Sube3494/shortlinks/internal/handler"
	"github.com/Sube3494/shortlinks/internal/middleware"
	"github.com/Sube3494/shortlinks/internal/observability"
)

// SetupRouter wires the HTTP surface. Everything under /api passes
// through the Authenticator; the bare /:code redirect does not.
func SetupRouter(
	linkHandler *handler.LinkHandler,
	keyHandler *handler.KeyHandler,
	authMW gin.HandlerFunc,
	obs *observability.Observability,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.HeaderAPIKey},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(obs.PrometheusHandler))

	api := r.Group("/api", authMW)
	{
		api.POST("/shorten", linkHandler.CreateLink)
		api.POST("/shorten/batch", linkHandler.CreateBatch)
		api.GET("/info/:code", linkHandler.GetInfo)
		api.GET("/stats/:code", linkHandler.GetStats)
		api.GET("/list", linkHandler.ListLinks)
		api.DELETE("/:code", linkHandler.DeleteLink)
		api.GET("/key/info", keyHandler.GetCurrentKeyInfo)
	}

	// Redirect lookups never pass through authentication.
	r.GET("/:code", linkHandler.Redirect)

	return r
}
