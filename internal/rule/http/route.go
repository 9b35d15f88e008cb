package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *RuleHandler, authMiddleware, manageMiddleware gin.HandlerFunc) {
	group := g.Group("/rules")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("/resolve", h.ResolvePolicy)
		group.POST("/validate", h.ValidateBooking)

		// Mutations require the rules management permission.
		group.POST("", manageMiddleware, h.Create)
		group.PUT("/:id", manageMiddleware, h.Update)
		group.DELETE("/:id", manageMiddleware, h.Deactivate) // Soft flag, never a hard delete
	}
}
