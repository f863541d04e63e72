package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/odns/internal/api/handlers"
	"github.com/jroosing/odns/internal/api/middleware"
	"github.com/jroosing/odns/internal/config"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jroosing/odns/internal/api/docs" // swagger docs
)

// RegisterRoutes wires the admin REST surface: health/stats, the
// denylist/hosts-list CRUD surface, and the query-log reader. Every write
// handler publishes its mutation onto the resolver command channel (wired
// separately via Handler.SetCommands) so the running server picks it up
// without a restart.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/lists", h.ListEntries)
	api.POST("/lists", h.AddEntry)
	api.DELETE("/lists/:id", h.DeleteEntry)

	api.GET("/querylog", h.QueryLog)
}
