package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secondhand-market/internal/handler"
	"github.com/iliyamo/secondhand-market/internal/middleware"
)

// Market groups the handlers behind the marketplace routes.
type Market struct {
	Listings      *handler.ListingHandler
	Reviews       *handler.ReviewHandler
	Conversations *handler.ConversationHandler
	Moderation    *handler.ModerationHandler
	Uploads       *handler.UploadHandler
	Live          *handler.LiveHandler
}

// RegisterPublic registers browse endpoints.  Guests see available
// listings only; a valid token lets owners and admins open their own.
// cache is applied to the anonymous catalogue reads.
func RegisterPublic(e *echo.Echo, m Market, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.OptionalJWT(jwtSecret))
	g.GET("/listings", m.Listings.Browse, cache)
	g.GET("/listings/:id", m.Listings.Get, cache)
	g.GET("/sellers/:id/reviews", m.Reviews.ForSeller, cache)
	g.GET("/online", m.Live.Online)
	// EventSource cannot set headers, so the token may come as ?access_token=.
	g.GET("/live", m.Live.Stream)
}

// RegisterMarket registers endpoints for signed-in accounts.  sendLimit
// throttles message sending per user.
func RegisterMarket(e *echo.Echo, m Market, jwtSecret string, sendLimit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	// ---- Listings ----
	g.POST("/listings", m.Listings.Submit)
	g.PATCH("/listings/:id", m.Listings.Edit)
	g.POST("/listings/:id/sold", m.Listings.MarkSold)
	g.POST("/listings/:id/unhide", m.Listings.Unhide)
	g.DELETE("/listings/:id", m.Listings.Remove)
	g.GET("/me/listings", m.Listings.Mine)
	g.POST("/listings/:id/review", m.Reviews.Create)

	// ---- Uploads ----
	g.POST("/uploads/sign", m.Uploads.Sign)
	g.POST("/uploads", m.Uploads.Upload)

	// ---- Conversations ----
	g.POST("/conversations", m.Conversations.Start)
	g.GET("/conversations", m.Conversations.List)
	g.DELETE("/conversations/:id", m.Conversations.Delete)
	g.GET("/conversations/:id/messages", m.Conversations.History)
	g.POST("/conversations/:id/messages", m.Conversations.Send, sendLimit)
	g.POST("/conversations/:id/read", m.Conversations.ReadAll)
	g.POST("/conversations/:id/messages/:msg/read", m.Conversations.ReadOne)
	g.GET("/conversations/:id/stream", m.Conversations.Stream)
	g.GET("/me/unread", m.Conversations.Unread)

	// ---- Reports ----
	g.POST("/reports", m.Moderation.FileReport)
}
