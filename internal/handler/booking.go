package handler

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-ticketing/internal/booking"
    "github.com/iliyamo/bus-ticketing/internal/gateway"
    "github.com/iliyamo/bus-ticketing/internal/ledger"
    "github.com/iliyamo/bus-ticketing/internal/middleware"
    "github.com/iliyamo/bus-ticketing/internal/model"
    q "github.com/iliyamo/bus-ticketing/internal/queue"
    "github.com/iliyamo/bus-ticketing/internal/repository"
    queue_publisher "github.com/iliyamo/bus-ticketing/internal/service"
)

// BookingHandler exposes the reservation and payment operations.
// All routes assume JWT authentication has already populated the
// caller's Identity; the handler performs no authentication itself.
type BookingHandler struct {
    Manager     *booking.Manager
    Coordinator *booking.PaymentCoordinator
    Trips       *repository.TripRepo
}

// NewBookingHandler constructs a BookingHandler.  All dependencies
// must be non-nil.
func NewBookingHandler(manager *booking.Manager, coordinator *booking.PaymentCoordinator, trips *repository.TripRepo) *BookingHandler {
    if manager == nil || coordinator == nil || trips == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{Manager: manager, Coordinator: coordinator, Trips: trips}
}

// Reserve handles POST /v1/trips/:id/reservations.  The body carries
// the seat quantity; the customer comes from the identity context.
// On success it returns 201 with the held reservation and its
// expiry.  Exhausted capacity maps to 409 Conflict.
func (h *BookingHandler) Reserve(c echo.Context) error {
    id, err := middleware.IdentityFrom(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tripID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || tripID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    var body struct {
        Quantity uint32 `json:"quantity"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res, err := h.Manager.Reserve(c.Request().Context(), tripID, id.CustomerID, body.Quantity)
    if err != nil {
        switch {
        case errors.Is(err, booking.ErrInvalidQuantity):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid quantity"})
        case errors.Is(err, repository.ErrTripNotFound), errors.Is(err, ledger.ErrUnknownTrip):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
        case errors.Is(err, ledger.ErrExhausted):
            return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reserve"})
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "reservation_id": res.ID,
        "state":          res.State,
        "quantity":       res.Quantity,
        "amount_cents":   res.AmountCents,
        "expires_at":     res.ExpiresAt.UTC().Format(time.RFC3339),
    })
}

// Charge handles POST /v1/reservations/:id/charge.  The body carries
// the opaque payment method token.  Success confirms the reservation
// and publishes a booking.confirmed event; declines and timeouts map
// to 402 and 504 respectively so clients can distinguish retriable
// outcomes.
func (h *BookingHandler) Charge(c echo.Context) error {
    id, err := middleware.IdentityFrom(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || resID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    var body struct {
        MethodToken string `json:"payment_method_token"`
    }
    if err := c.Bind(&body); err != nil || body.MethodToken == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_method_token is required"})
    }
    ctx := c.Request().Context()

    // Ownership check before any money moves.
    res, _, err := h.Manager.Status(ctx, resID)
    if err != nil {
        if errors.Is(err, repository.ErrReservationNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservation"})
    }
    if res.CustomerID != id.CustomerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }

    attempt, err := h.Coordinator.Charge(ctx, resID, body.MethodToken)
    if err != nil {
        switch {
        case errors.Is(err, booking.ErrAlreadyConfirmed):
            return c.JSON(http.StatusOK, echo.Map{"state": model.ReservationConfirmed, "note": "already confirmed"})
        case errors.Is(err, booking.ErrReservationExpired):
            return c.JSON(http.StatusConflict, echo.Map{"error": "reservation hold expired"})
        case errors.Is(err, booking.ErrChargeInProgress):
            return c.JSON(http.StatusConflict, echo.Map{"error": "a charge for this reservation is already in progress"})
        case errors.Is(err, gateway.ErrDeclined):
            return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment declined"})
        case errors.Is(err, gateway.ErrTimeout):
            return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "payment outcome unknown, will be reconciled"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to charge"})
    }

    // Publish the confirmation for downstream consumers.  Best
    // effort: a broker outage must not fail a paid booking.
    if trip, terr := h.Trips.GetByID(ctx, res.TripID); terr == nil {
        _ = queue_publisher.PublishReservationConfirmed(ctx, q.ReservationConfirmedEvent{
            ReservationID: res.ID,
            CustomerID:    res.CustomerID,
            TripID:        trip.ID,
            Origin:        trip.Origin,
            Destination:   trip.Destination,
            DepartsAt:     trip.DepartsAt.UTC().Format(time.RFC3339),
            Quantity:      res.Quantity,
            AmountCents:   res.AmountCents,
            GatewayRef:    attempt.GatewayRef,
            ConfirmedAt:   time.Now().UTC().Format(time.RFC3339),
        })
    }

    return c.JSON(http.StatusCreated, echo.Map{
        "reservation_id": res.ID,
        "state":          model.ReservationConfirmed,
        "attempt_id":     attempt.ID,
        "gateway_ref":    attempt.GatewayRef,
        "amount_cents":   attempt.AmountCents,
    })
}

// Cancel handles DELETE /v1/reservations/:id.  It releases the
// caller's held reservation; cancelling twice is idempotent.
func (h *BookingHandler) Cancel(c echo.Context) error {
    id, err := middleware.IdentityFrom(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || resID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    err = h.Manager.CancelReservation(c.Request().Context(), resID, id.CustomerID)
    if err != nil {
        switch {
        case errors.Is(err, repository.ErrReservationNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        case errors.Is(err, repository.ErrForbidden):
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        case errors.Is(err, booking.ErrAlreadyConfirmed):
            return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already confirmed"})
        case errors.Is(err, booking.ErrReservationExpired):
            return c.JSON(http.StatusConflict, echo.Map{"error": "reservation hold expired"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel"})
    }
    return c.NoContent(http.StatusNoContent)
}

// Status handles GET /v1/reservations/:id.  It returns the
// reservation state (reporting EXPIRED for lapsed holds) along with
// its payment attempts.
func (h *BookingHandler) Status(c echo.Context) error {
    id, err := middleware.IdentityFrom(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || resID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, attempts, err := h.Manager.Status(c.Request().Context(), resID)
    if err != nil {
        if errors.Is(err, repository.ErrReservationNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservation"})
    }
    if res.CustomerID != id.CustomerID && !id.HasRole(middleware.RoleAdmin) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    type attemptView struct {
        ID            uint64 `json:"id"`
        State         string `json:"state"`
        FailureReason string `json:"failure_reason,omitempty"`
        GatewayRef    string `json:"gateway_ref,omitempty"`
        AmountCents   uint32 `json:"amount_cents"`
    }
    views := make([]attemptView, 0, len(attempts))
    for _, a := range attempts {
        views = append(views, attemptView{
            ID: a.ID, State: a.State, FailureReason: a.FailureReason,
            GatewayRef: a.GatewayRef, AmountCents: a.AmountCents,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{
        "reservation_id": res.ID,
        "trip_id":        res.TripID,
        "state":          res.State,
        "quantity":       res.Quantity,
        "amount_cents":   res.AmountCents,
        "expires_at":     res.ExpiresAt.UTC().Format(time.RFC3339),
        "attempts":       views,
    })
}

// ListMine handles GET /v1/my-reservations.  It returns all
// reservations created by the calling customer, newest first.
func (h *BookingHandler) ListMine(c echo.Context) error {
    id, err := middleware.IdentityFrom(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    items, err := h.Manager.ListByCustomer(c.Request().Context(), id.CustomerID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservations"})
    }
    type view struct {
        ID          uint64 `json:"id"`
        TripID      uint64 `json:"trip_id"`
        State       string `json:"state"`
        Quantity    uint32 `json:"quantity"`
        AmountCents uint32 `json:"amount_cents"`
        ExpiresAt   string `json:"expires_at"`
    }
    views := make([]view, 0, len(items))
    for _, r := range items {
        views = append(views, view{
            ID: r.ID, TripID: r.TripID, State: r.State,
            Quantity: r.Quantity, AmountCents: r.AmountCents,
            ExpiresAt: r.ExpiresAt.UTC().Format(time.RFC3339),
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"items": views})
}
