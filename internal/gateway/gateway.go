// Package gateway abstracts the external payment gateway.  The
// booking core only needs to authorize a charge and, for
// reconciliation, look a charge up by the idempotency key it sent.
// The wire protocol behind these calls is gateway-defined.
package gateway

import (
    "context"
    "errors"
)

// ErrDeclined is returned when the gateway definitively refused the
// charge.  Terminal for the attempt; the customer may retry with a
// different payment method.
var ErrDeclined = errors.New("gateway declined the charge")

// ErrTimeout is returned when no definitive response arrived within
// the bounded call timeout.  The outcome is ambiguous: the gateway
// may or may not have captured the charge.  Callers must never treat
// this as success or as certain failure, and must not retry the same
// idempotency key automatically; reconciliation resolves it.
var ErrTimeout = errors.New("gateway call timed out")

// ErrChargeNotFound is returned by Lookup when the gateway has no
// record of the idempotency key, meaning the timed-out request never
// reached it.
var ErrChargeNotFound = errors.New("gateway has no record of the charge")

// ChargeRequest carries everything the gateway needs to authorize a
// payment.  The idempotency key is unique per attempt.
type ChargeRequest struct {
    AmountCents    uint32 `json:"amount_cents"`
    Currency       string `json:"currency"`
    MethodToken    string `json:"payment_method_token"`
    IdempotencyKey string `json:"idempotency_key"`
}

// ChargeResult is the gateway's definitive answer for a charge.
type ChargeResult struct {
    Reference string `json:"reference"` // gateway-side charge reference
    Approved  bool   `json:"approved"`
}

// Gateway is the narrow payment interface consumed by the payment
// coordinator.  Authorize is called exactly once per attempt.
type Gateway interface {
    Authorize(ctx context.Context, req ChargeRequest) (ChargeResult, error)
    Lookup(ctx context.Context, idempotencyKey string) (ChargeResult, error)
}
