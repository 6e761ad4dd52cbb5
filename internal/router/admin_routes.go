package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/handler"
	"github.com/iliyamo/secondhand-market/internal/middleware"
	"github.com/iliyamo/secondhand-market/internal/model"
)

// RegisterAdmin registers the moderation console under /v1/admin.  The
// role check here only routes; every action re-reads the caller's role.
func RegisterAdmin(e *echo.Echo, h *handler.ModerationHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Listings ----
	g.GET("/listings", h.Queue)
	g.POST("/listings/:id/approve", h.Approve)
	g.POST("/listings/:id/reject", h.Reject)
	g.POST("/listings/:id/hide", h.Hide)
	g.POST("/listings/:id/unhide", h.Unhide)
	g.POST("/listings/:id/delete", h.Delete)
	g.DELETE("/listings/:id", h.Purge)

	// ---- Accounts ----
	g.POST("/accounts/:id/ban", h.Ban)
	g.POST("/accounts/:id/unban", h.Unban)
	g.DELETE("/accounts/:id", h.DeleteAccount)

	// ---- Reports ----
	g.GET("/reports", h.Reports)
	g.POST("/reports/:id/dismiss", h.DismissReport)
	g.POST("/reports/:id/resolve", h.ResolveReport)
}
