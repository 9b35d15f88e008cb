package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *AvailabilityHandler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/availability")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("/slots", h.FindSlots)
		group.GET("/check", h.CheckResource)
		group.GET("/schedule", h.GetSchedule)

		group.GET("/blocks", h.ListBlocks)
		group.POST("/blocks", h.CreateBlock)
		group.DELETE("/blocks/:id", h.DeleteBlock)

		group.GET("/operating-hours", h.ListOperatingHours)
		group.PUT("/operating-hours", h.SetOperatingHours)
	}
}
