package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers parking-related routes. Browsing, availability and
// quoting are public; creating and editing a parking require authentication.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/parkings")

	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/availability", h.Availability)
	group.POST("/:id/quote", h.Quote)

	authed := group.Group("")
	authed.Use(authMiddleware)
	{
		authed.POST("", h.Create)
		authed.PATCH("/:id", h.Update)
	}
}
