package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"markprompt/internal/bootstrap"
	"markprompt/internal/ratelimit"
	"markprompt/internal/transport/http/handler"
	"markprompt/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	sourceHandler := handler.NewSourceHandler(app.Sources)
	syncHandler := handler.NewSyncHandler(app.Syncs, app.Gate)
	sectionsHandler := handler.NewSectionsHandler(app.Retrieval)
	insightsHandler := handler.NewInsightsHandler(app.Insights)

	rl := app.Config.RateLimit
	embeddingsBucket := ratelimit.Bucket{
		Name:   "embeddings",
		Limit:  rl.EmbeddingsLimit,
		Window: time.Duration(rl.EmbeddingsWindowSeconds) * time.Second,
	}
	sectionsBucket := ratelimit.Bucket{
		Name:   "sections",
		Limit:  rl.SectionsLimit,
		Window: time.Duration(rl.SectionsWindowSeconds) * time.Second,
	}
	searchBucket := ratelimit.Bucket{
		Name:   "search",
		Limit:  rl.SearchLimit,
		Window: time.Duration(rl.SearchWindowSeconds) * time.Second,
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthProjectToken(app.Config.Auth.JWTSecret))

	sources := v1.Group("/sources")
	sources.POST("", sourceHandler.Create)
	sources.GET("", sourceHandler.List)
	sources.DELETE("/:id", sourceHandler.Delete)
	sources.GET("/:id/files", sourceHandler.ListFiles)
	sources.POST("/:id/files",
		middleware.RateLimit(app.Limiter, embeddingsBucket, ratelimit.KeyProjectID),
		sourceHandler.Upload)
	sources.GET("/:id/syncs", syncHandler.List)
	sources.GET("/:id/syncs/latest", syncHandler.Latest)

	syncs := v1.Group("/syncs")
	syncs.POST("",
		middleware.RateLimit(app.Limiter, embeddingsBucket, ratelimit.KeyProjectID),
		syncHandler.Trigger)
	syncs.GET("/:job_id", syncHandler.Get)
	syncs.POST("/:job_id/cancel", syncHandler.Cancel)

	sections := v1.Group("/sections")
	sections.POST("/match",
		middleware.RateLimit(app.Limiter, sectionsBucket, ratelimit.KeyProjectID),
		sectionsHandler.Match)
	sections.GET("/search",
		middleware.RateLimit(app.Limiter, searchBucket, ratelimit.KeyProjectID),
		sectionsHandler.Search)

	insights := v1.Group("/insights")
	insights.GET("/queries", insightsHandler.Queries)
	insights.GET("/references", insightsHandler.References)

	return router
}
