package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *WaitlistHandler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/waitlist")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("", h.Add)
		group.POST("/:id/cancel", h.Cancel)
		group.POST("/:id/accept", h.Accept)
		group.POST("/:id/decline", h.Decline)
		group.POST("/expire-offers", h.ExpireOffers)
	}
}
