// Package ledger implements the seat ledger: the authoritative,
// per-trip counter of confirmed and held seats.  It is the single
// correctness-critical concurrency point of the booking core.  All
// mutations go through TryHold, Confirm and Release; the invariant
// confirmed + held <= capacity holds at all times and no count ever
// goes negative.
//
// Two backends are provided: SQLLedger persists counts in MySQL and
// serializes concurrent holds with conditional updates, and
// MemoryLedger keeps everything in process for tests and local
// development.  Operations on different trips never contend.
package ledger

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// ErrExhausted is returned by TryHold when the trip does not have
// enough unclaimed seats for the requested quantity.  Callers may
// retry with a smaller quantity or a different trip.
var ErrExhausted = errors.New("not enough seats available")

// ErrUnknownTrip is returned when no ledger entry exists for the
// trip.  Trips must be seeded before holds can be taken.
var ErrUnknownTrip = errors.New("no ledger entry for trip")

// ErrHoldNotFound is returned when a token does not match any hold.
var ErrHoldNotFound = errors.New("hold token not found")

// ErrHoldFinalized is returned when Confirm is called on a released
// hold or Release on a confirmed one.  Crossing finalized states
// would double-count seats; this signals a defect in the caller, not
// a recoverable condition.
var ErrHoldFinalized = errors.New("hold already finalized in a different state")

// ErrCorrupt is returned when a counter update would drive a count
// negative or past capacity.  The ledger is the only writer of these
// counts, so this is unreachable unless the store has been modified
// out of band.
var ErrCorrupt = errors.New("seat ledger counters corrupt")

// Ledger is the seat accounting contract used by the reservation
// manager.  Confirm and Release are idempotent: repeating the call
// for a token already in the target state is a no-op.
type Ledger interface {
    // Seed creates the ledger entry for a trip with zero confirmed
    // and held seats.
    Seed(ctx context.Context, tripID uint64, capacity uint32) error

    // TryHold atomically claims quantity seats and returns an opaque
    // hold token.  Fails with ErrExhausted when not enough seats are
    // unclaimed.
    TryHold(ctx context.Context, tripID uint64, quantity uint32) (string, error)

    // Confirm moves the hold's quantity from held to confirmed.
    Confirm(ctx context.Context, token string) error

    // Release returns the hold's quantity to the available pool.
    Release(ctx context.Context, token string) error

    // Entry reports the current counters for a trip.
    Entry(ctx context.Context, tripID uint64) (model.LedgerEntry, error)
}

// newToken generates a random 64-character hexadecimal hold token
// using crypto/rand.
func newToken() (string, error) {
    b := make([]byte, 32)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return hex.EncodeToString(b), nil
}
