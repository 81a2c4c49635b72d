package handler

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/bus-ticketing/internal/booking"
    "github.com/iliyamo/bus-ticketing/internal/ledger"
    "github.com/iliyamo/bus-ticketing/internal/model"
    "github.com/iliyamo/bus-ticketing/internal/repository"
)

// availabilityTTL bounds how stale a cached availability read may be.
// Availability is advisory: the ledger re-checks atomically on every
// hold, so a short cache never oversells.
const availabilityTTL = 2 * time.Second

// TripHandler exposes trip management and availability queries.
// Creation is restricted to admins by the router; reads are public to
// authenticated customers.
type TripHandler struct {
    Trips   *repository.TripRepo
    Ledger  *ledger.SQLLedger
    Manager *booking.Manager
    Cache   *redis.Client // optional; nil disables caching
}

// NewTripHandler constructs a TripHandler.  Cache may be nil when
// Redis is unavailable; availability queries then always hit the
// ledger.
func NewTripHandler(trips *repository.TripRepo, sl *ledger.SQLLedger, manager *booking.Manager, cache *redis.Client) *TripHandler {
    if trips == nil || sl == nil || manager == nil {
        panic("nil dependency passed to NewTripHandler")
    }
    return &TripHandler{Trips: trips, Ledger: sl, Manager: manager, Cache: cache}
}

// Create handles POST /v1/trips.  It inserts the trip and seeds its
// seat ledger entry in a single transaction so a trip can never exist
// without a ledger row.
func (h *TripHandler) Create(c echo.Context) error {
    var body struct {
        Origin      string `json:"origin"`
        Destination string `json:"destination"`
        DepartsAt   string `json:"departs_at"`
        Capacity    uint32 `json:"capacity"`
        PriceCents  uint32 `json:"price_cents"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.Origin == "" || body.Destination == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "origin and destination are required"})
    }
    if body.Capacity == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be positive"})
    }
    departs, err := time.Parse(time.RFC3339, body.DepartsAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "departs_at must be RFC3339"})
    }
    if !departs.After(time.Now().UTC()) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "departs_at must be in the future"})
    }

    ctx := c.Request().Context()
    trip := &model.Trip{
        Origin:      body.Origin,
        Destination: body.Destination,
        DepartsAt:   departs.UTC(),
        Capacity:    body.Capacity,
        PriceCents:  body.PriceCents,
    }
    tx, err := h.Trips.DB().BeginTx(ctx, nil)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create trip"})
    }
    defer tx.Rollback()
    if err := h.Trips.CreateTx(ctx, tx, trip); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create trip"})
    }
    if err := h.Ledger.SeedTx(ctx, tx, trip.ID, trip.Capacity); err != nil {
        if errors.Is(err, repository.ErrDuplicateTrip) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "trip already seeded"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to seed seat ledger"})
    }
    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create trip"})
    }

    return c.JSON(http.StatusCreated, echo.Map{
        "trip_id":     trip.ID,
        "origin":      trip.Origin,
        "destination": trip.Destination,
        "departs_at":  trip.DepartsAt.UTC().Format(time.RFC3339),
        "capacity":    trip.Capacity,
        "price_cents": trip.PriceCents,
    })
}

// List handles GET /v1/trips.  It returns upcoming trips ordered by
// departure; the optional limit query parameter caps the result.
func (h *TripHandler) List(c echo.Context) error {
    limit := 0
    if raw := c.QueryParam("limit"); raw != "" {
        if n, err := strconv.Atoi(raw); err == nil {
            limit = n
        }
    }
    trips, err := h.Trips.List(c.Request().Context(), limit)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load trips"})
    }
    type view struct {
        ID          uint64 `json:"id"`
        Origin      string `json:"origin"`
        Destination string `json:"destination"`
        DepartsAt   string `json:"departs_at"`
        Capacity    uint32 `json:"capacity"`
        PriceCents  uint32 `json:"price_cents"`
    }
    views := make([]view, 0, len(trips))
    for _, t := range trips {
        views = append(views, view{
            ID: t.ID, Origin: t.Origin, Destination: t.Destination,
            DepartsAt: t.DepartsAt.UTC().Format(time.RFC3339),
            Capacity: t.Capacity, PriceCents: t.PriceCents,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// availabilityView is the cached and served shape of a seat count
// snapshot.
type availabilityView struct {
    TripID    uint64 `json:"trip_id"`
    Capacity  uint32 `json:"capacity"`
    Confirmed uint32 `json:"confirmed"`
    Held      uint32 `json:"held"`
    Available uint32 `json:"available"`
}

// Availability handles GET /v1/trips/:id/availability.  Counts are a
// snapshot served through a short Redis cache; the response is
// advisory and a subsequent hold may still fail.
func (h *TripHandler) Availability(c echo.Context) error {
    tripID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || tripID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    ctx := c.Request().Context()
    key := fmt.Sprintf("availability:%d", tripID)

    if h.Cache != nil {
        if raw, err := h.Cache.Get(ctx, key).Bytes(); err == nil {
            var cached availabilityView
            if json.Unmarshal(raw, &cached) == nil {
                return c.JSON(http.StatusOK, cached)
            }
        }
    }

    entry, err := h.Manager.Availability(ctx, tripID)
    if err != nil {
        if errors.Is(err, ledger.ErrUnknownTrip) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load availability"})
    }
    view := availabilityView{
        TripID:    entry.TripID,
        Capacity:  entry.Capacity,
        Confirmed: entry.Confirmed,
        Held:      entry.Held,
        Available: entry.Available(),
    }
    h.cacheAvailability(ctx, key, view)
    return c.JSON(http.StatusOK, view)
}

// cacheAvailability writes the snapshot to Redis on a best-effort
// basis.
func (h *TripHandler) cacheAvailability(ctx context.Context, key string, view availabilityView) {
    if h.Cache == nil {
        return
    }
    raw, err := json.Marshal(view)
    if err != nil {
        return
    }
    h.Cache.Set(ctx, key, raw, availabilityTTL)
}
