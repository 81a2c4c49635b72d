package model

import "time"

// Payment attempt state values.  An attempt is PENDING while the
// gateway call is in flight, then SUCCEEDED or FAILED.  At most one
// attempt per reservation may ever reach SUCCEEDED.
const (
    PaymentPending   = "PENDING"
    PaymentSucceeded = "SUCCEEDED"
    PaymentFailed    = "FAILED"
)

// Failure reasons recorded on FAILED attempts.  Timeout failures are
// ambiguous (the gateway may have captured the charge) and stay
// unreconciled until the reconciliation job resolves them against
// the gateway's own record.
const (
    FailureDeclined = "gateway_declined"
    FailureTimeout  = "gateway_timeout"
)

// PaymentAttempt is one gateway charge attempt for a reservation.
// Retries create new attempts; attempts are never reused.
//
// Fields:
//  ID             – primary key identifier.
//  ReservationID  – reservation being paid for.
//  IdempotencyKey – key sent to the gateway, unique per attempt.
//  GatewayRef     – reference returned by the gateway (empty until known).
//  AmountCents    – charged amount in cents.
//  State          – PENDING, SUCCEEDED or FAILED.
//  FailureReason  – gateway_declined or gateway_timeout (empty on success).
//  ReconciledAt   – when an ambiguous timeout was resolved (nullable).
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last state change timestamp.
type PaymentAttempt struct {
    ID             uint64     // payment_attempts.id
    ReservationID  uint64     // payment_attempts.reservation_id
    IdempotencyKey string     // payment_attempts.idempotency_key
    GatewayRef     string     // payment_attempts.gateway_ref
    AmountCents    uint32     // payment_attempts.amount_cents
    State          string     // payment_attempts.state
    FailureReason  string     // payment_attempts.failure_reason
    ReconciledAt   *time.Time // payment_attempts.reconciled_at (nullable)
    CreatedAt      time.Time  // payment_attempts.created_at
    UpdatedAt      time.Time  // payment_attempts.updated_at
}
