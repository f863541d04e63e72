package handlers_test

import (
	"github.com/gin-gonic/gin"
	"github.com/jroosing/odns/internal/api/handlers"
)

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/lists", h.ListEntries)
	api.POST("/lists", h.AddEntry)
	api.DELETE("/lists/:id", h.DeleteEntry)
	api.GET("/querylog", h.QueryLog)

	return r
}
