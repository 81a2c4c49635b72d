package booking

import (
    "context"
    "log"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    sweepExpirations = promauto.NewCounter(prometheus.CounterOpts{
        Name: "booking_sweep_expired_total",
        Help: "Reservations transitioned to EXPIRED by the sweep.",
    })
    sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
        Name: "booking_sweep_errors_total",
        Help: "Sweep passes that ended with an error.",
    })
    sweepRepairs = promauto.NewCounter(prometheus.CounterOpts{
        Name: "booking_sweep_repaired_holds_total",
        Help: "Stranded seat holds released by the repair pass.",
    })
    reconcileResolved = promauto.NewCounter(prometheus.CounterOpts{
        Name: "booking_reconcile_resolved_total",
        Help: "Timeout payment attempts resolved against the gateway.",
    })
    reconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
        Name: "booking_reconcile_errors_total",
        Help: "Reconciliation passes that ended with an error.",
    })
)

// Sweeper periodically expires lapsed holds and releases holds
// stranded by a failure between a terminal transition and its seat
// release.  It shares the exact release path of explicit
// cancellation, so seat accounting cannot diverge between the two.
type Sweeper struct {
    manager  *Manager
    interval time.Duration
    batch    int
}

// NewSweeper returns a sweeper running every interval (default 30s)
// over batches of at most batch reservations (default 100).
func NewSweeper(manager *Manager, interval time.Duration, batch int) *Sweeper {
    if interval <= 0 {
        interval = 30 * time.Second
    }
    if batch <= 0 {
        batch = 100
    }
    return &Sweeper{manager: manager, interval: interval, batch: batch}
}

// Run blocks until the context is cancelled, sweeping once per tick.
func (s *Sweeper) Run(ctx context.Context) {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    log.Printf("sweeper: running every %s", s.interval)
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            n, err := s.manager.SweepExpired(ctx, s.batch)
            if err != nil {
                sweepErrors.Inc()
                log.Printf("sweeper: pass failed: %v", err)
                continue
            }
            if n > 0 {
                sweepExpirations.Add(float64(n))
                log.Printf("sweeper: expired %d reservations", n)
            }
            repaired, err := s.manager.ReleaseLeaked(ctx, s.batch)
            if err != nil {
                sweepErrors.Inc()
                log.Printf("sweeper: repair pass failed: %v", err)
                continue
            }
            if repaired > 0 {
                sweepRepairs.Add(float64(repaired))
                log.Printf("sweeper: released %d stranded holds", repaired)
            }
        }
    }
}

// Reconciler periodically resolves ambiguous gateway timeouts before
// the related holds expire.
type Reconciler struct {
    coordinator *PaymentCoordinator
    interval    time.Duration
    batch       int
}

// NewReconciler returns a reconciler running every interval (default
// 1m) over batches of at most batch attempts (default 50).
func NewReconciler(coordinator *PaymentCoordinator, interval time.Duration, batch int) *Reconciler {
    if interval <= 0 {
        interval = time.Minute
    }
    if batch <= 0 {
        batch = 50
    }
    return &Reconciler{coordinator: coordinator, interval: interval, batch: batch}
}

// Run blocks until the context is cancelled, reconciling once per
// tick.
func (r *Reconciler) Run(ctx context.Context) {
    ticker := time.NewTicker(r.interval)
    defer ticker.Stop()
    log.Printf("reconciler: running every %s", r.interval)
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            n, err := r.coordinator.Reconcile(ctx, r.batch)
            if err != nil {
                reconcileErrors.Inc()
                log.Printf("reconciler: pass failed: %v", err)
                continue
            }
            if n > 0 {
                reconcileResolved.Add(float64(n))
                log.Printf("reconciler: resolved %d attempts", n)
            }
        }
    }
}
