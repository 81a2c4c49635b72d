package booking

import (
    "context"
    "errors"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/bus-ticketing/internal/gateway"
    "github.com/iliyamo/bus-ticketing/internal/model"
    "github.com/iliyamo/bus-ticketing/internal/repository"
)

// ErrChargeInProgress is returned when another charge for the same
// reservation is still in flight, or an earlier timeout failure
// awaits reconciliation.  The caller should wait and retry; starting
// a second gateway call now could charge the customer twice.
var ErrChargeInProgress = errors.New("a charge for this reservation is already in progress")

// PaymentCoordinator drives payments for reservations.  It owns the
// payment_attempts table exclusively: one PENDING attempt per
// gateway call, resolved exactly once.  The gateway is called at
// most once per attempt, under a bounded timeout; an ambiguous
// timeout is left for Reconcile, never retried with the same
// idempotency key.
type PaymentCoordinator struct {
    manager  *Manager
    payments PaymentStore
    gw       gateway.Gateway
    currency string
    timeout  time.Duration
    now      func() time.Time
}

// NewPaymentCoordinator constructs a coordinator sharing the
// manager's stores.  Timeout bounds each gateway call and defaults
// to ten seconds.
func NewPaymentCoordinator(manager *Manager, gw gateway.Gateway, currency string, timeout time.Duration) *PaymentCoordinator {
    if manager == nil || gw == nil {
        panic("nil dependency passed to NewPaymentCoordinator")
    }
    if currency == "" {
        currency = "USD"
    }
    if timeout <= 0 {
        timeout = 10 * time.Second
    }
    return &PaymentCoordinator{
        manager:  manager,
        payments: manager.payments,
        gw:       gw,
        currency: currency,
        timeout:  timeout,
        now:      manager.now,
    }
}

// Charge verifies the reservation is still HELD and unexpired,
// creates a PENDING attempt and calls the gateway exactly once.
// The guarded attempt insert serializes charges per reservation:
// when another attempt is PENDING, SUCCEEDED or an unreconciled
// timeout, Charge fails before calling the gateway, so two racing
// calls can never both capture money.  Success confirms the
// reservation; a decline leaves it HELD so the customer can retry
// with another payment method; a timeout marks the attempt failed
// with the gateway_timeout reason for the reconciliation job to
// resolve.
func (c *PaymentCoordinator) Charge(ctx context.Context, reservationID uint64, methodToken string) (*model.PaymentAttempt, error) {
    res, err := c.manager.reservations.Get(ctx, reservationID)
    if err != nil {
        return nil, err
    }
    switch res.State {
    case model.ReservationConfirmed:
        return nil, ErrAlreadyConfirmed
    case model.ReservationReleased, model.ReservationExpired:
        return nil, ErrReservationExpired
    }
    if res.ExpiredAt(c.now().UTC()) {
        _ = c.manager.expire(ctx, res)
        return nil, ErrReservationExpired
    }

    attempt := &model.PaymentAttempt{
        ReservationID:  reservationID,
        IdempotencyKey: uuid.NewString(),
        AmountCents:    res.AmountCents,
        State:          model.PaymentPending,
    }
    if err := c.payments.Create(ctx, attempt); err != nil {
        if errors.Is(err, repository.ErrChargeConflict) {
            return nil, c.conflictError(ctx, reservationID)
        }
        return nil, err
    }
    c.manager.record(ctx, model.LedgerEvent{
        EntityType: "payment",
        EntityID:   attempt.ID,
        EventType:  model.EventPaymentPending,
        NextState:  model.PaymentPending,
        Detail:     detail(map[string]any{"reservation_id": reservationID, "amount_cents": attempt.AmountCents, "idempotency_key": attempt.IdempotencyKey}),
    })

    gctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    result, gerr := c.gw.Authorize(gctx, gateway.ChargeRequest{
        AmountCents:    attempt.AmountCents,
        Currency:       c.currency,
        MethodToken:    methodToken,
        IdempotencyKey: attempt.IdempotencyKey,
    })

    switch {
    case gerr == nil:
        return c.settle(ctx, res, attempt, result.Reference)
    case errors.Is(gerr, gateway.ErrDeclined):
        if err := c.payments.Resolve(ctx, attempt.ID, model.PaymentPending, model.PaymentFailed, result.Reference, model.FailureDeclined); err != nil {
            return nil, err
        }
        c.recordFailure(ctx, attempt, model.FailureDeclined)
        return nil, gateway.ErrDeclined
    default:
        // Timeouts and transport failures alike leave the outcome
        // unknown; both go down the reconciliation path.
        if err := c.payments.Resolve(ctx, attempt.ID, model.PaymentPending, model.PaymentFailed, "", model.FailureTimeout); err != nil {
            return nil, err
        }
        c.recordFailure(ctx, attempt, model.FailureTimeout)
        return nil, gateway.ErrTimeout
    }
}

// conflictError translates a blocked attempt insert into the error
// the caller can act on: the winning charge may already have
// confirmed the reservation, in which case the seats are theirs.
func (c *PaymentCoordinator) conflictError(ctx context.Context, reservationID uint64) error {
    res, err := c.manager.reservations.Get(ctx, reservationID)
    if err != nil {
        return err
    }
    if res.State == model.ReservationConfirmed {
        return ErrAlreadyConfirmed
    }
    return ErrChargeInProgress
}

// settle marks the attempt succeeded and confirms the reservation.
// Money has been captured at this point, so the confirm path skips
// the TTL re-check; if the sweep expired the reservation during the
// gateway call the mismatch is surfaced for reconciliation.
func (c *PaymentCoordinator) settle(ctx context.Context, res *model.Reservation, attempt *model.PaymentAttempt, ref string) (*model.PaymentAttempt, error) {
    if err := c.payments.Resolve(ctx, attempt.ID, model.PaymentPending, model.PaymentSucceeded, ref, ""); err != nil {
        return nil, err
    }
    attempt.State = model.PaymentSucceeded
    attempt.GatewayRef = ref
    c.manager.record(ctx, model.LedgerEvent{
        EntityType: "payment",
        EntityID:   attempt.ID,
        EventType:  model.EventPaymentSucceeded,
        PrevState:  model.PaymentPending,
        NextState:  model.PaymentSucceeded,
        Detail:     detail(map[string]any{"reservation_id": res.ID, "gateway_ref": ref}),
    })
    if _, err := c.manager.finalizeConfirm(ctx, res); err != nil {
        // Captured money without seats: never silent.
        log.Printf("payment: attempt %d succeeded but reservation %d could not be confirmed: %v", attempt.ID, res.ID, err)
        if c.manager.alerts != nil {
            c.manager.alerts.AppendFailed(ctx, model.LedgerEvent{
                EntityType: "payment",
                EntityID:   attempt.ID,
                EventType:  model.EventPaymentSucceeded,
                Detail:     detail(map[string]any{"reservation_id": res.ID, "error": err.Error()}),
            }, err)
        }
        return attempt, err
    }
    return attempt, nil
}

func (c *PaymentCoordinator) recordFailure(ctx context.Context, attempt *model.PaymentAttempt, reason string) {
    attempt.State = model.PaymentFailed
    attempt.FailureReason = reason
    c.manager.record(ctx, model.LedgerEvent{
        EntityType: "payment",
        EntityID:   attempt.ID,
        EventType:  model.EventPaymentFailed,
        PrevState:  model.PaymentPending,
        NextState:  model.PaymentFailed,
        Detail:     detail(map[string]any{"reservation_id": attempt.ReservationID, "reason": reason}),
    })
}

// Reconcile resolves ambiguous timeout failures against the
// gateway's own record, looking each attempt up by the idempotency
// key it was sent with.  A charge the gateway captured is promoted
// to SUCCEEDED and the reservation confirmed; a charge the gateway
// never saw or declined is closed out.  Attempts the gateway cannot
// answer for right now are left for the next pass.  Returns the
// number of attempts resolved.
func (c *PaymentCoordinator) Reconcile(ctx context.Context, limit int) (int, error) {
    attempts, err := c.payments.ListUnreconciledTimeouts(ctx, limit)
    if err != nil {
        return 0, err
    }
    resolved := 0
    for i := range attempts {
        attempt := &attempts[i]
        result, lerr := c.gw.Lookup(ctx, attempt.IdempotencyKey)
        switch {
        case errors.Is(lerr, gateway.ErrChargeNotFound):
            // The original request never reached the gateway.
            if err := c.payments.MarkReconciled(ctx, attempt.ID, c.now().UTC()); err != nil {
                return resolved, err
            }
            resolved++
        case lerr != nil:
            log.Printf("payment: reconcile lookup for attempt %d: %v", attempt.ID, lerr)
            continue
        case result.Approved:
            if err := c.promote(ctx, attempt, result.Reference); err != nil {
                log.Printf("payment: promote attempt %d: %v", attempt.ID, err)
                continue
            }
            resolved++
        default:
            // Definitive decline on the gateway side.
            if err := c.payments.MarkReconciled(ctx, attempt.ID, c.now().UTC()); err != nil {
                return resolved, err
            }
            resolved++
        }
    }
    return resolved, nil
}

// promote upgrades a timeout-failed attempt whose charge the gateway
// actually captured.
func (c *PaymentCoordinator) promote(ctx context.Context, attempt *model.PaymentAttempt, ref string) error {
    if err := c.payments.Resolve(ctx, attempt.ID, model.PaymentFailed, model.PaymentSucceeded, ref, ""); err != nil {
        return err
    }
    c.manager.record(ctx, model.LedgerEvent{
        EntityType: "payment",
        EntityID:   attempt.ID,
        EventType:  model.EventPaymentSucceeded,
        PrevState:  model.PaymentFailed,
        NextState:  model.PaymentSucceeded,
        Detail:     detail(map[string]any{"reservation_id": attempt.ReservationID, "gateway_ref": ref, "reconciled": true}),
    })
    res, err := c.manager.reservations.Get(ctx, attempt.ReservationID)
    if err != nil {
        return err
    }
    switch res.State {
    case model.ReservationHeld:
        if _, err := c.manager.finalizeConfirm(ctx, res); err != nil {
            return err
        }
    case model.ReservationConfirmed:
        // already confirmed, nothing to do
    default:
        // The hold lapsed before reconciliation caught up: the
        // customer was charged but the seats are gone.  Needs an
        // operator; refunds are outside this core.
        log.Printf("payment: reconciled attempt %d captured but reservation %d is %s", attempt.ID, res.ID, res.State)
    }
    if err := c.payments.MarkReconciled(ctx, attempt.ID, c.now().UTC()); err != nil {
        return err
    }
    return nil
}
