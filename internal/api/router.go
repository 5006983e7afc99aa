package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cbegin/soundscape-go/internal/api/handlers"
	apimiddleware "github.com/cbegin/soundscape-go/internal/api/middleware"
	"github.com/cbegin/soundscape-go/internal/config"
)

func SetupRouter(host handlers.Host, cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())
	router.Use(apimiddleware.SentryMiddleware())
	router.Use(apimiddleware.RequestTracking())

	h := handlers.NewEngineHandler(host, cfg.MaxPatchBytes)
	router.GET("/health", h.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/patch", h.GetPatch)
		v1.PUT("/patch", h.LoadPatch)
		v1.POST("/patch/validate", h.ValidatePatch)
		v1.POST("/patch/diff", h.ApplyDiff)

		v1.GET("/macros", h.GetMacros)
		v1.PUT("/macros/:name", h.SetMacro)

		v1.POST("/start", h.Start)
		v1.POST("/stop", h.Stop)

		v1.GET("/summary", h.Summary)
		v1.GET("/topology", h.Topology)
		v1.GET("/stats", h.Stats)
	}
	return router
}
