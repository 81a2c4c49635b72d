package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// ErrAttemptNotFound is returned when a payment attempt lookup
// matches no row.
var ErrAttemptNotFound = errors.New("payment attempt not found")

// ErrChargeConflict is returned by Create when the reservation
// already has an attempt that blocks a new charge: a PENDING attempt
// (a gateway call is in flight), a SUCCEEDED one (the customer has
// paid), or an unreconciled timeout failure (the gateway may have
// captured the money and reconciliation has not ruled yet).
var ErrChargeConflict = errors.New("conflicting payment attempt for reservation")

// PaymentRepo provides data access to the payment_attempts table.
// The payment coordinator owns attempts exclusively: it creates one
// PENDING row per gateway call and resolves it with a guarded
// Resolve update, so an attempt can never be finalized twice.
type PaymentRepo struct {
    db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given
// database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts a PENDING payment attempt and populates the
// generated ID on the record.  The insert is guarded: it only lands
// when the reservation has no PENDING attempt, no SUCCEEDED attempt
// and no unreconciled timeout failure.  The guard serializes charges
// per reservation so at most one gateway call can ever be in flight
// and at most one attempt can ever reach SUCCEEDED; concurrent or
// premature charges fail with ErrChargeConflict before any money
// moves.
func (r *PaymentRepo) Create(ctx context.Context, a *model.PaymentAttempt) error {
    const q = `INSERT INTO payment_attempts
               (reservation_id, idempotency_key, amount_cents, state)
               SELECT ?, ?, ?, ? FROM DUAL
               WHERE NOT EXISTS (
                   SELECT 1 FROM payment_attempts
                   WHERE reservation_id = ?
                     AND (state = ? OR state = ?
                          OR (state = ? AND failure_reason = ? AND reconciled_at IS NULL))
               )`
    result, err := r.db.ExecContext(ctx, q,
        a.ReservationID, a.IdempotencyKey, a.AmountCents, a.State,
        a.ReservationID,
        model.PaymentPending, model.PaymentSucceeded,
        model.PaymentFailed, model.FailureTimeout)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrChargeConflict
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    a.ID = uint64(id)
    now := time.Now().UTC()
    a.CreatedAt = now
    a.UpdatedAt = now
    return nil
}

// Resolve finalizes an attempt with a guarded UPDATE from the
// expected state.  The gateway reference and failure reason are
// recorded alongside the new state.  ErrStaleTransition is returned
// when the attempt already left the expected state.
func (r *PaymentRepo) Resolve(ctx context.Context, id uint64, from, to, gatewayRef, failureReason string) error {
    const q = `UPDATE payment_attempts
               SET state = ?, gateway_ref = ?, failure_reason = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND state = ?`
    result, err := r.db.ExecContext(ctx, q, to, gatewayRef, failureReason, id, from)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrStaleTransition
    }
    return nil
}

// MarkReconciled stamps the time an ambiguous timeout failure was
// resolved against the gateway's record.  Idempotent: a second call
// leaves the original timestamp in place.
func (r *PaymentRepo) MarkReconciled(ctx context.Context, id uint64, at time.Time) error {
    const q = `UPDATE payment_attempts
               SET reconciled_at = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND reconciled_at IS NULL`
    _, err := r.db.ExecContext(ctx, q, at.UTC().Format("2006-01-02 15:04:05"), id)
    return err
}

// ListUnreconciledTimeouts returns FAILED attempts whose failure was
// a gateway timeout and that have not yet been reconciled.  The
// reconciliation job resolves each against the gateway by
// idempotency key before the related hold expires.
func (r *PaymentRepo) ListUnreconciledTimeouts(ctx context.Context, limit int) ([]model.PaymentAttempt, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    const q = `SELECT id, reservation_id, idempotency_key, gateway_ref, amount_cents,
                      state, failure_reason, reconciled_at, created_at, updated_at
               FROM payment_attempts
               WHERE state = ? AND failure_reason = ? AND reconciled_at IS NULL
               ORDER BY created_at ASC
               LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, model.PaymentFailed, model.FailureTimeout, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.PaymentAttempt, 0)
    for rows.Next() {
        var a model.PaymentAttempt
        var ref, reason sql.NullString
        var reconciled sql.NullTime
        if err := rows.Scan(
            &a.ID, &a.ReservationID, &a.IdempotencyKey, &ref, &a.AmountCents,
            &a.State, &reason, &reconciled, &a.CreatedAt, &a.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        a.GatewayRef = ref.String
        a.FailureReason = reason.String
        if reconciled.Valid {
            t := reconciled.Time
            a.ReconciledAt = &t
        }
        out = append(out, a)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// ListByReservation returns all attempts for a reservation, oldest
// first.  Used by the status endpoint to show payment history.
func (r *PaymentRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.PaymentAttempt, error) {
    const q = `SELECT id, reservation_id, idempotency_key, gateway_ref, amount_cents,
                      state, failure_reason, reconciled_at, created_at, updated_at
               FROM payment_attempts
               WHERE reservation_id = ?
               ORDER BY created_at ASC`
    rows, err := r.db.QueryContext(ctx, q, reservationID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.PaymentAttempt, 0)
    for rows.Next() {
        var a model.PaymentAttempt
        var ref, reason sql.NullString
        var reconciled sql.NullTime
        if err := rows.Scan(
            &a.ID, &a.ReservationID, &a.IdempotencyKey, &ref, &a.AmountCents,
            &a.State, &reason, &reconciled, &a.CreatedAt, &a.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        a.GatewayRef = ref.String
        a.FailureReason = reason.String
        if reconciled.Valid {
            t := reconciled.Time
            a.ReconciledAt = &t
        }
        out = append(out, a)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
