// Package booking implements the reservation manager and payment
// coordinator on top of the seat ledger and transaction log.  The
// reservation state machine is HELD -> {CONFIRMED, RELEASED,
// EXPIRED}; every transition is guarded at the store level so racing
// operations (explicit cancel vs. the expiry sweep, duplicate
// charges) resolve to exactly one winner.
package booking

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/iliyamo/bus-ticketing/internal/ledger"
    "github.com/iliyamo/bus-ticketing/internal/model"
    "github.com/iliyamo/bus-ticketing/internal/repository"
    "github.com/iliyamo/bus-ticketing/internal/txlog"
)

// ErrInvalidQuantity is returned by Reserve for a zero quantity or
// one above the per-reservation maximum.  Rejected before touching
// the ledger.
var ErrInvalidQuantity = errors.New("invalid seat quantity")

// ErrReservationExpired is returned when an operation requires a
// live hold but the reservation has lapsed or was already finalized
// without payment.  The customer must reserve again.
var ErrReservationExpired = errors.New("reservation hold expired")

// ErrAlreadyConfirmed is returned when charging or cancelling a
// reservation that has already been paid for.  For duplicate charge
// calls this is success-equivalent: the seats are the caller's.
var ErrAlreadyConfirmed = errors.New("reservation already confirmed")

// TripStore is the slice of the trip repository the booking core
// needs: price and existence lookups.
type TripStore interface {
    GetByID(ctx context.Context, id uint64) (*model.Trip, error)
}

// ReservationStore persists reservations.  Transition must be
// guarded: it returns repository.ErrStaleTransition when the row
// already left the expected state.
type ReservationStore interface {
    Create(ctx context.Context, res *model.Reservation) error
    Get(ctx context.Context, id uint64) (*model.Reservation, error)
    Transition(ctx context.Context, id uint64, from, to string) error
    ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
    ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error)

    // ListLeakedHolds returns hold tokens still HELD in the ledger
    // whose reservation already reached RELEASED or EXPIRED.  Such
    // holds exist only when a crash or ledger failure separated the
    // reservation transition from the seat release; the repair pass
    // releases them.
    ListLeakedHolds(ctx context.Context, limit int) ([]string, error)
}

// PaymentStore persists payment attempts.  Create must reject a new
// attempt with repository.ErrChargeConflict while the reservation
// has a PENDING attempt, a SUCCEEDED one, or an unreconciled timeout
// failure; that guard is what serializes charges per reservation.
// Resolve is guarded the same way Transition is.
type PaymentStore interface {
    Create(ctx context.Context, a *model.PaymentAttempt) error
    Resolve(ctx context.Context, id uint64, from, to, gatewayRef, failureReason string) error
    MarkReconciled(ctx context.Context, id uint64, at time.Time) error
    ListUnreconciledTimeouts(ctx context.Context, limit int) ([]model.PaymentAttempt, error)
    ListByReservation(ctx context.Context, reservationID uint64) ([]model.PaymentAttempt, error)
}

// Manager drives the reservation lifecycle: taking holds, confirming
// them after payment, releasing them on cancel and expiring them on
// TTL.  All seat accounting goes through the ledger; the manager
// never touches counters directly.
type Manager struct {
    trips        TripStore
    ledger       ledger.Ledger
    reservations ReservationStore
    payments     PaymentStore
    txlog        txlog.Log
    alerts       txlog.AlertNotifier
    holdTTL      time.Duration
    maxQuantity  uint32
    now          func() time.Time
}

// ManagerConfig carries the dependencies and tuning for a Manager.
// Alerts may be nil; Now defaults to time.Now.
type ManagerConfig struct {
    Trips        TripStore
    Ledger       ledger.Ledger
    Reservations ReservationStore
    Payments     PaymentStore
    TxLog        txlog.Log
    Alerts       txlog.AlertNotifier
    HoldTTL      time.Duration
    MaxQuantity  uint32
    Now          func() time.Time
}

// NewManager constructs a Manager.  HoldTTL defaults to ten minutes
// and MaxQuantity to ten seats when unset.
func NewManager(cfg ManagerConfig) *Manager {
    if cfg.Trips == nil || cfg.Ledger == nil || cfg.Reservations == nil || cfg.Payments == nil || cfg.TxLog == nil {
        panic("nil dependency passed to NewManager")
    }
    m := &Manager{
        trips:        cfg.Trips,
        ledger:       cfg.Ledger,
        reservations: cfg.Reservations,
        payments:     cfg.Payments,
        txlog:        cfg.TxLog,
        alerts:       cfg.Alerts,
        holdTTL:      cfg.HoldTTL,
        maxQuantity:  cfg.MaxQuantity,
        now:          cfg.Now,
    }
    if m.holdTTL <= 0 {
        m.holdTTL = 10 * time.Minute
    }
    if m.maxQuantity == 0 {
        m.maxQuantity = 10
    }
    if m.now == nil {
        m.now = time.Now
    }
    return m
}

// Reserve takes a seat ledger hold and persists a HELD reservation
// with a hold-expiry of now + TTL.  On ledger exhaustion it returns
// ledger.ErrExhausted untouched so handlers can translate it.  If
// persisting the reservation fails after the hold was taken, the
// hold is released again so no capacity leaks.
func (m *Manager) Reserve(ctx context.Context, tripID, customerID uint64, quantity uint32) (*model.Reservation, error) {
    if quantity == 0 || quantity > m.maxQuantity {
        return nil, ErrInvalidQuantity
    }
    trip, err := m.trips.GetByID(ctx, tripID)
    if err != nil {
        return nil, err
    }
    token, err := m.ledger.TryHold(ctx, tripID, quantity)
    if err != nil {
        return nil, err
    }
    now := m.now().UTC()
    res := &model.Reservation{
        TripID:      tripID,
        CustomerID:  customerID,
        Quantity:    quantity,
        State:       model.ReservationHeld,
        HoldToken:   token,
        AmountCents: trip.PriceCents * quantity,
        ExpiresAt:   now.Add(m.holdTTL),
    }
    if err := m.reservations.Create(ctx, res); err != nil {
        // Compensate: the hold was taken but the reservation row
        // never existed, so give the seats back immediately.
        if rerr := m.ledger.Release(ctx, token); rerr != nil {
            log.Printf("booking: failed to release orphaned hold %s: %v", token, rerr)
        }
        return nil, err
    }
    m.record(ctx, model.LedgerEvent{
        EntityType: "reservation",
        EntityID:   res.ID,
        EventType:  model.EventReservationHeld,
        NextState:  model.ReservationHeld,
        Detail:     detail(map[string]any{"trip_id": tripID, "customer_id": customerID, "quantity": quantity, "amount_cents": res.AmountCents}),
    })
    return res, nil
}

// ConfirmReservation moves a HELD, unexpired reservation to
// CONFIRMED and confirms its ledger hold.  Confirming an already
// confirmed reservation is an idempotent success.  An expired hold
// is expired on the spot and reported as ErrReservationExpired.
func (m *Manager) ConfirmReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
    res, err := m.reservations.Get(ctx, id)
    if err != nil {
        return nil, err
    }
    switch res.State {
    case model.ReservationConfirmed:
        return res, nil
    case model.ReservationReleased, model.ReservationExpired:
        return nil, ErrReservationExpired
    }
    if res.ExpiredAt(m.now().UTC()) {
        _ = m.expire(ctx, res)
        return nil, ErrReservationExpired
    }
    return m.finalizeConfirm(ctx, res)
}

// finalizeConfirm performs the guarded HELD -> CONFIRMED transition
// without re-checking the TTL.  The payment coordinator uses it
// directly once money has been captured: a charge that succeeded
// must not be dropped because the clock ticked past expiry during
// the gateway call.
func (m *Manager) finalizeConfirm(ctx context.Context, res *model.Reservation) (*model.Reservation, error) {
    err := m.reservations.Transition(ctx, res.ID, model.ReservationHeld, model.ReservationConfirmed)
    if err != nil {
        if errors.Is(err, repository.ErrStaleTransition) {
            // Lost a race. Reload to see who won.
            current, gerr := m.reservations.Get(ctx, res.ID)
            if gerr != nil {
                return nil, gerr
            }
            if current.State == model.ReservationConfirmed {
                return current, nil
            }
            return nil, ErrReservationExpired
        }
        return nil, err
    }
    if err := m.ledger.Confirm(ctx, res.HoldToken); err != nil {
        // The reservation row says CONFIRMED but the ledger refused;
        // counters are the authority, so surface this loudly.
        return nil, fmt.Errorf("confirm hold %s: %w", res.HoldToken, err)
    }
    m.record(ctx, model.LedgerEvent{
        EntityType: "reservation",
        EntityID:   res.ID,
        EventType:  model.EventReservationConfirmed,
        PrevState:  model.ReservationHeld,
        NextState:  model.ReservationConfirmed,
        Detail:     detail(map[string]any{"trip_id": res.TripID, "quantity": res.Quantity}),
    })
    res.State = model.ReservationConfirmed
    return res, nil
}

// CancelReservation releases a HELD reservation on behalf of its
// owner.  Cancelling twice is an idempotent success; a confirmed
// reservation cannot be cancelled here and an expired one reports
// ErrReservationExpired.
func (m *Manager) CancelReservation(ctx context.Context, id, customerID uint64) error {
    res, err := m.reservations.Get(ctx, id)
    if err != nil {
        return err
    }
    if res.CustomerID != customerID {
        return repository.ErrForbidden
    }
    switch res.State {
    case model.ReservationReleased:
        return nil
    case model.ReservationConfirmed:
        return ErrAlreadyConfirmed
    case model.ReservationExpired:
        return ErrReservationExpired
    }
    err = m.reservations.Transition(ctx, id, model.ReservationHeld, model.ReservationReleased)
    if err != nil {
        if errors.Is(err, repository.ErrStaleTransition) {
            // The sweep or a duplicate cancel got there first.
            current, gerr := m.reservations.Get(ctx, id)
            if gerr != nil {
                return gerr
            }
            switch current.State {
            case model.ReservationReleased:
                return nil
            case model.ReservationConfirmed:
                return ErrAlreadyConfirmed
            default:
                return ErrReservationExpired
            }
        }
        return err
    }
    if err := m.ledger.Release(ctx, res.HoldToken); err != nil {
        return fmt.Errorf("release hold %s: %w", res.HoldToken, err)
    }
    m.record(ctx, model.LedgerEvent{
        EntityType: "reservation",
        EntityID:   id,
        EventType:  model.EventReservationReleased,
        PrevState:  model.ReservationHeld,
        NextState:  model.ReservationReleased,
        Detail:     detail(map[string]any{"trip_id": res.TripID, "quantity": res.Quantity}),
    })
    return nil
}

// expire applies the HELD -> EXPIRED transition for a lapsed
// reservation and releases its hold through the same ledger path
// cancellation uses.  Exactly-once: losing the guarded transition
// means another actor already finalized the reservation, and the
// hold is left alone.
func (m *Manager) expire(ctx context.Context, res *model.Reservation) error {
    err := m.reservations.Transition(ctx, res.ID, model.ReservationHeld, model.ReservationExpired)
    if err != nil {
        if errors.Is(err, repository.ErrStaleTransition) {
            return nil
        }
        return err
    }
    if err := m.ledger.Release(ctx, res.HoldToken); err != nil {
        return fmt.Errorf("release hold %s: %w", res.HoldToken, err)
    }
    m.record(ctx, model.LedgerEvent{
        EntityType: "reservation",
        EntityID:   res.ID,
        EventType:  model.EventReservationExpired,
        PrevState:  model.ReservationHeld,
        NextState:  model.ReservationExpired,
        Detail:     detail(map[string]any{"trip_id": res.TripID, "quantity": res.Quantity}),
    })
    return nil
}

// ReleaseLeaked releases holds still HELD in the ledger whose
// reservation is already terminal without payment.  The release path
// runs after the guarded transition commits, so a crash or a ledger
// error in that window strands the seats; this pass gives them back.
// Release is idempotent, so repairing a hold that a concurrent
// cancel just released is harmless.  Returns how many holds were
// released.
func (m *Manager) ReleaseLeaked(ctx context.Context, limit int) (int, error) {
    tokens, err := m.reservations.ListLeakedHolds(ctx, limit)
    if err != nil {
        return 0, err
    }
    released := 0
    for _, token := range tokens {
        if err := m.ledger.Release(ctx, token); err != nil {
            log.Printf("booking: repair release of hold %s: %v", token, err)
            continue
        }
        released++
    }
    return released, nil
}

// SweepExpired expires all HELD reservations past their TTL and
// returns how many were transitioned.  Called periodically by the
// sweeper.
func (m *Manager) SweepExpired(ctx context.Context, limit int) (int, error) {
    lapsed, err := m.reservations.ListExpired(ctx, m.now().UTC(), limit)
    if err != nil {
        return 0, err
    }
    expired := 0
    for i := range lapsed {
        if err := m.expire(ctx, &lapsed[i]); err != nil {
            log.Printf("booking: expire reservation %d: %v", lapsed[i].ID, err)
            continue
        }
        expired++
    }
    return expired, nil
}

// Status returns a reservation together with its payment attempts.
// A HELD reservation past its TTL is reported as EXPIRED without
// mutating anything; the sweep performs the actual transition.
func (m *Manager) Status(ctx context.Context, id uint64) (*model.Reservation, []model.PaymentAttempt, error) {
    res, err := m.reservations.Get(ctx, id)
    if err != nil {
        return nil, nil, err
    }
    if res.State == model.ReservationHeld && res.ExpiredAt(m.now().UTC()) {
        shown := *res
        shown.State = model.ReservationExpired
        res = &shown
    }
    attempts, err := m.payments.ListByReservation(ctx, id)
    if err != nil {
        return nil, nil, err
    }
    return res, attempts, nil
}

// ListByCustomer returns all reservations owned by a customer.
func (m *Manager) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
    return m.reservations.ListByCustomer(ctx, customerID)
}

// Availability reports the seat counters for a trip.
func (m *Manager) Availability(ctx context.Context, tripID uint64) (model.LedgerEntry, error) {
    return m.ledger.Entry(ctx, tripID)
}

// record appends an event to the transaction log.  The state change
// being recorded has already taken effect, so a failed append is
// never allowed to roll it back; it is logged and pushed to the
// alert notifier instead.
func (m *Manager) record(ctx context.Context, ev model.LedgerEvent) {
    if err := m.txlog.Append(ctx, &ev); err != nil {
        log.Printf("booking: txlog append failed for %s on %s/%d: %v", ev.EventType, ev.EntityType, ev.EntityID, err)
        if m.alerts != nil {
            m.alerts.AppendFailed(ctx, ev, err)
        }
    }
}

// detail marshals event context to JSON, falling back to an empty
// object so a marshalling hiccup never blocks a state change.
func detail(fields map[string]any) string {
    b, err := json.Marshal(fields)
    if err != nil {
        return "{}"
    }
    return string(b)
}
