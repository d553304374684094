package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/parking-ticket-tracker/internal/handler"    // handlers that implement the ticket operations
	"github.com/iliyamo/parking-ticket-tracker/internal/middleware" // device authentication, rate limiting and caching
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterDevices registers device registration and login under /v1/devices.
// These routes issue tokens and therefore sit outside DeviceAuth.  login
// may be nil.
func RegisterDevices(e *echo.Echo, d *handler.DeviceHandler, login echo.MiddlewareFunc) {
	g := e.Group("/v1/devices", present(login)...)
	g.POST("", d.Register)
	g.POST("/login", d.Login)
}

// RegisterTickets registers the ticket lifecycle routes.  Every route runs
// DeviceAuth first so that handlers can resolve the caller's collections,
// then the API limiter.  /v1/verify additionally spends from the scan
// bucket.  qrCache applies to the QR image route only: a ticket's QR payload
// is fixed at open time.  Nil middleware is skipped.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, jwtSecret string, limits middleware.RateLimits, qrCache echo.MiddlewareFunc) {
	g := e.Group("/v1", present(middleware.DeviceAuth(jwtSecret), limits.API)...)

	g.POST("/tickets", t.Open)
	g.GET("/tickets/active", t.ListActive)
	g.GET("/tickets/history", t.ListHistory)
	g.DELETE("/tickets/history/:id", t.DeleteHistory)
	g.GET("/tickets/:id", t.Get)
	g.GET("/tickets/:id/quote", t.Quote)
	g.POST("/tickets/:id/close", t.Close)
	g.GET("/tickets/:id/qr", t.QRText)
	g.GET("/tickets/:id/qr.png", t.QRImage, present(qrCache)...)
	g.POST("/verify", t.Verify, present(limits.Scan)...)
}

// present drops nil middleware so optional layers can be passed straight
// through.
func present(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mw))
	for _, m := range mw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
