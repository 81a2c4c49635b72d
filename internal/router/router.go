package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/bus-ticketing/internal/config"
    "github.com/iliyamo/bus-ticketing/internal/handler"    // import the handlers that implement business logic
    "github.com/iliyamo/bus-ticketing/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health check used by load balancers and the
// Prometheus metrics endpoint scraped by monitoring.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
    e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterTrips registers trip browsing and management endpoints.
// Listing and availability are open to any authenticated caller;
// creating a trip requires the ADMIN role because it seeds the seat
// ledger.
func RegisterTrips(e *echo.Echo, t *handler.TripHandler, jwtSecret string, rdb *redis.Client) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
    )
    g.GET("/trips", t.List)
    g.GET("/trips/:id/availability", t.Availability)

    admin := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(middleware.RoleAdmin),
    )
    admin.POST("/trips", t.Create)
}

// RegisterBookings registers the reservation lifecycle endpoints under
// /v1.  All routes require a valid JWT; the rate limiter protects the
// hold and charge paths from burst abuse.  Ownership of individual
// reservations is enforced inside the handlers.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, rdb *redis.Client) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
    )
    g.POST("/trips/:id/reservations", b.Reserve)
    g.POST("/reservations/:id/charge", b.Charge)
    g.DELETE("/reservations/:id", b.Cancel)
    g.GET("/reservations/:id", b.Status)
    g.GET("/my-reservations", b.ListMine)
}

// RegisterAudit registers the transaction log read endpoint.  Only
// ADMIN identities may page through the audit trail.
func RegisterAudit(e *echo.Echo, a *handler.AuditHandler, jwtSecret string) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(middleware.RoleAdmin),
    )
    g.GET("/audit/events", a.Events)
}
