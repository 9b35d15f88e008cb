package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *BookingHandler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/bookings")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.GET("/calendar", h.GetCalendar)
		group.POST("/conflicts", h.CheckConflicts)
		group.GET("/:id", h.Get)
		group.POST("", h.Create)
		group.PATCH("/:id", h.Update)

		// Lifecycle transitions
		group.POST("/:id/cancel", h.Cancel)
		group.POST("/:id/confirm", h.Confirm)
		group.POST("/:id/check-in", h.CheckIn)
		group.POST("/:id/dispatch", h.Dispatch)
		group.POST("/:id/complete", h.Complete)
		group.POST("/:id/no-show", h.MarkNoShow)
		group.PATCH("/:id/readiness", h.UpdateReadiness)
	}
}
