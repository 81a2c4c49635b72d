package booking

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/iliyamo/bus-ticketing/internal/gateway"
    "github.com/iliyamo/bus-ticketing/internal/model"
)

// fakeGateway scripts Authorize and Lookup outcomes and records the
// requests it receives.
type fakeGateway struct {
    authorizeErr error
    reference    string
    lookupErr    error
    lookupResult gateway.ChargeResult
    requests     []gateway.ChargeRequest
    lookups      []string
}

func (g *fakeGateway) Authorize(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
    g.requests = append(g.requests, req)
    if g.authorizeErr != nil {
        return gateway.ChargeResult{}, g.authorizeErr
    }
    return gateway.ChargeResult{Reference: g.reference, Approved: true}, nil
}

func (g *fakeGateway) Lookup(ctx context.Context, idempotencyKey string) (gateway.ChargeResult, error) {
    g.lookups = append(g.lookups, idempotencyKey)
    if g.lookupErr != nil {
        return gateway.ChargeResult{}, g.lookupErr
    }
    return g.lookupResult, nil
}

func newCoordinator(f *fixture, gw gateway.Gateway) *PaymentCoordinator {
    return NewPaymentCoordinator(f.manager, gw, "USD", time.Second)
}

func TestChargeSuccessConfirms(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{reference: "ch_123"}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 2)
    attempt, err := c.Charge(ctx, res.ID, "tok_visa")
    if err != nil {
        t.Fatalf("Charge: %v", err)
    }
    if attempt.State != model.PaymentSucceeded || attempt.GatewayRef != "ch_123" {
        t.Fatalf("attempt = %+v, want SUCCEEDED with ref ch_123", attempt)
    }
    if len(gw.requests) != 1 {
        t.Fatalf("gateway called %d times, want 1", len(gw.requests))
    }
    req := gw.requests[0]
    if req.AmountCents != 5000 || req.Currency != "USD" || req.IdempotencyKey == "" {
        t.Fatalf("charge request = %+v", req)
    }

    got, _ := f.reservations.Get(ctx, res.ID)
    if got.State != model.ReservationConfirmed {
        t.Fatalf("reservation state = %q, want CONFIRMED", got.State)
    }
    e, _ := f.ledger.Entry(ctx, 1)
    if e.Confirmed != 2 || e.Held != 0 {
        t.Fatalf("counters = confirmed %d held %d, want 2/0", e.Confirmed, e.Held)
    }
}

func TestChargeDeclinedLeavesHoldIntact(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrDeclined}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 2)
    _, err := c.Charge(ctx, res.ID, "tok_bad")
    if !errors.Is(err, gateway.ErrDeclined) {
        t.Fatalf("Charge = %v, want ErrDeclined", err)
    }

    // The hold survives so the customer can retry with another card.
    got, _ := f.reservations.Get(ctx, res.ID)
    if got.State != model.ReservationHeld {
        t.Fatalf("reservation state = %q, want HELD", got.State)
    }
    e, _ := f.ledger.Entry(ctx, 1)
    if e.Held != 2 {
        t.Fatalf("held = %d, want 2", e.Held)
    }
    attempts, _ := f.payments.ListByReservation(ctx, res.ID)
    if len(attempts) != 1 || attempts[0].State != model.PaymentFailed || attempts[0].FailureReason != model.FailureDeclined {
        t.Fatalf("attempts = %+v, want one FAILED/gateway_declined", attempts)
    }
}

func TestChargeRetryAfterDeclineUsesFreshKey(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrDeclined}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 1)
    _, _ = c.Charge(ctx, res.ID, "tok_bad")

    gw.authorizeErr = nil
    gw.reference = "ch_retry"
    attempt, err := c.Charge(ctx, res.ID, "tok_good")
    if err != nil {
        t.Fatalf("retry Charge: %v", err)
    }
    if attempt.State != model.PaymentSucceeded {
        t.Fatalf("retry attempt state = %q, want SUCCEEDED", attempt.State)
    }
    if len(gw.requests) != 2 {
        t.Fatalf("gateway called %d times, want 2", len(gw.requests))
    }
    if gw.requests[0].IdempotencyKey == gw.requests[1].IdempotencyKey {
        t.Fatal("retry reused the previous idempotency key")
    }
}

func TestChargeAlreadyConfirmed(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{reference: "ch_1"}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 1)
    if _, err := c.Charge(ctx, res.ID, "tok"); err != nil {
        t.Fatalf("Charge: %v", err)
    }
    if _, err := c.Charge(ctx, res.ID, "tok"); !errors.Is(err, ErrAlreadyConfirmed) {
        t.Fatalf("second Charge = %v, want ErrAlreadyConfirmed", err)
    }
    if len(gw.requests) != 1 {
        t.Fatalf("gateway called %d times for a confirmed reservation, want 1", len(gw.requests))
    }
}

// gatedGateway parks Authorize on a channel so a test can hold one
// charge mid-flight while another races it.
type gatedGateway struct {
    mu      sync.Mutex
    n       int
    entered chan struct{}
    release chan struct{}
}

func (g *gatedGateway) Authorize(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
    g.mu.Lock()
    g.n++
    g.mu.Unlock()
    g.entered <- struct{}{}
    <-g.release
    return gateway.ChargeResult{Reference: "ch_gated", Approved: true}, nil
}

func (g *gatedGateway) Lookup(ctx context.Context, idempotencyKey string) (gateway.ChargeResult, error) {
    return gateway.ChargeResult{}, gateway.ErrChargeNotFound
}

func (g *gatedGateway) calls() int {
    g.mu.Lock()
    defer g.mu.Unlock()
    return g.n
}

// Two charges race on the same HELD reservation.  The attempt guard
// admits exactly one; the loser must fail before reaching the
// gateway, so the customer's card is authorized once, not twice.
func TestChargeConcurrentAuthorizesOnce(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &gatedGateway{entered: make(chan struct{}, 1), release: make(chan struct{})}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 2)

    done := make(chan error, 1)
    go func() {
        _, err := c.Charge(ctx, res.ID, "tok_first")
        done <- err
    }()
    <-gw.entered

    // The second charge arrives while the first is at the gateway.
    if _, err := c.Charge(ctx, res.ID, "tok_second"); !errors.Is(err, ErrChargeInProgress) {
        t.Fatalf("racing Charge = %v, want ErrChargeInProgress", err)
    }

    close(gw.release)
    if err := <-done; err != nil {
        t.Fatalf("first Charge: %v", err)
    }

    if got := gw.calls(); got != 1 {
        t.Fatalf("gateway authorized %d times, want 1", got)
    }
    attempts, _ := f.payments.ListByReservation(ctx, res.ID)
    if len(attempts) != 1 || attempts[0].State != model.PaymentSucceeded {
        t.Fatalf("attempts = %+v, want exactly one SUCCEEDED", attempts)
    }
    got, _ := f.reservations.Get(ctx, res.ID)
    if got.State != model.ReservationConfirmed {
        t.Fatalf("reservation state = %q, want CONFIRMED", got.State)
    }
}

// An unreconciled timeout may have captured money, so a fresh charge
// is held off until reconciliation settles the first one.
func TestChargeBlockedUntilTimeoutReconciled(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrTimeout}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 1)
    if _, err := c.Charge(ctx, res.ID, "tok"); !errors.Is(err, gateway.ErrTimeout) {
        t.Fatalf("Charge = %v, want ErrTimeout", err)
    }

    gw.authorizeErr = nil
    gw.reference = "ch_2"
    if _, err := c.Charge(ctx, res.ID, "tok"); !errors.Is(err, ErrChargeInProgress) {
        t.Fatalf("retry before reconcile = %v, want ErrChargeInProgress", err)
    }
    if len(gw.requests) != 1 {
        t.Fatalf("gateway called %d times, want 1", len(gw.requests))
    }

    // Reconciliation confirms the gateway never saw the charge; the
    // retry is safe now.
    gw.lookupErr = gateway.ErrChargeNotFound
    if _, err := c.Reconcile(ctx, 10); err != nil {
        t.Fatalf("Reconcile: %v", err)
    }
    attempt, err := c.Charge(ctx, res.ID, "tok")
    if err != nil {
        t.Fatalf("retry after reconcile: %v", err)
    }
    if attempt.State != model.PaymentSucceeded || attempt.GatewayRef != "ch_2" {
        t.Fatalf("attempt = %+v, want SUCCEEDED with ref ch_2", attempt)
    }
}

func TestChargeExpiredHold(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 1)
    f.clock.Advance(11 * time.Minute)

    if _, err := c.Charge(ctx, res.ID, "tok"); !errors.Is(err, ErrReservationExpired) {
        t.Fatalf("Charge after TTL = %v, want ErrReservationExpired", err)
    }
    if len(gw.requests) != 0 {
        t.Fatal("gateway must not be called for an expired hold")
    }
}

func TestChargeTimeoutMarksAmbiguousFailure(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrTimeout}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 2)
    _, err := c.Charge(ctx, res.ID, "tok")
    if !errors.Is(err, gateway.ErrTimeout) {
        t.Fatalf("Charge = %v, want ErrTimeout", err)
    }
    attempts, _ := f.payments.ListByReservation(ctx, res.ID)
    if len(attempts) != 1 {
        t.Fatalf("attempts = %d, want 1", len(attempts))
    }
    a := attempts[0]
    if a.State != model.PaymentFailed || a.FailureReason != model.FailureTimeout || a.ReconciledAt != nil {
        t.Fatalf("attempt = %+v, want unreconciled FAILED/gateway_timeout", a)
    }
}

func TestReconcilePromotesCapturedCharge(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrTimeout}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 2)
    _, _ = c.Charge(ctx, res.ID, "tok")

    // The gateway actually captured the charge.
    gw.lookupResult = gateway.ChargeResult{Reference: "ch_late", Approved: true}
    n, err := c.Reconcile(ctx, 10)
    if err != nil {
        t.Fatalf("Reconcile: %v", err)
    }
    if n != 1 {
        t.Fatalf("resolved %d attempts, want 1", n)
    }

    got, _ := f.reservations.Get(ctx, res.ID)
    if got.State != model.ReservationConfirmed {
        t.Fatalf("reservation state = %q, want CONFIRMED", got.State)
    }
    attempts, _ := f.payments.ListByReservation(ctx, res.ID)
    a := attempts[0]
    if a.State != model.PaymentSucceeded || a.GatewayRef != "ch_late" || a.ReconciledAt == nil {
        t.Fatalf("attempt = %+v, want reconciled SUCCEEDED with ref ch_late", a)
    }
    // Nothing left to reconcile.
    n, _ = c.Reconcile(ctx, 10)
    if n != 0 {
        t.Fatalf("second reconcile resolved %d, want 0", n)
    }
}

func TestReconcileClosesUnseenCharge(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrTimeout}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 2)
    _, _ = c.Charge(ctx, res.ID, "tok")

    // The gateway never saw the request.
    gw.lookupErr = gateway.ErrChargeNotFound
    n, err := c.Reconcile(ctx, 10)
    if err != nil {
        t.Fatalf("Reconcile: %v", err)
    }
    if n != 1 {
        t.Fatalf("resolved %d attempts, want 1", n)
    }
    attempts, _ := f.payments.ListByReservation(ctx, res.ID)
    a := attempts[0]
    if a.State != model.PaymentFailed || a.ReconciledAt == nil {
        t.Fatalf("attempt = %+v, want reconciled FAILED", a)
    }
    // The hold is still the customer's to retry or let lapse.
    got, _ := f.reservations.Get(ctx, res.ID)
    if got.State != model.ReservationHeld {
        t.Fatalf("reservation state = %q, want HELD", got.State)
    }
}

func TestReconcileSkipsUnansweredLookups(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrTimeout}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 1)
    _, _ = c.Charge(ctx, res.ID, "tok")

    gw.lookupErr = gateway.ErrTimeout
    n, err := c.Reconcile(ctx, 10)
    if err != nil {
        t.Fatalf("Reconcile: %v", err)
    }
    if n != 0 {
        t.Fatalf("resolved %d with an unreachable gateway, want 0", n)
    }
    attempts, _ := f.payments.ListByReservation(ctx, res.ID)
    if attempts[0].ReconciledAt != nil {
        t.Fatal("attempt marked reconciled despite lookup failure")
    }
}

func TestReconcileLookupUsesOriginalKey(t *testing.T) {
    ctx := context.Background()
    f := newFixture(t, 10)
    gw := &fakeGateway{authorizeErr: gateway.ErrTimeout}
    c := newCoordinator(f, gw)

    res, _ := f.manager.Reserve(ctx, 1, 42, 1)
    _, _ = c.Charge(ctx, res.ID, "tok")

    gw.lookupErr = gateway.ErrChargeNotFound
    _, _ = c.Reconcile(ctx, 10)
    if len(gw.lookups) != 1 || gw.lookups[0] != gw.requests[0].IdempotencyKey {
        t.Fatalf("lookup keys = %v, want the key the charge was sent with", gw.lookups)
    }
}
