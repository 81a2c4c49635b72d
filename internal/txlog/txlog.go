// Package txlog implements the append-only transaction log.  Every
// reservation and payment state transition is recorded as a
// LedgerEvent after the transition takes effect; the log never rolls
// a transition back.  External audit tooling reads the log with
// ReadSince, restartable from the monotonic cursor.
package txlog

import (
    "context"
    "errors"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// ErrBadCursor is returned by ReadSince for a limit outside the
// accepted range.
var ErrBadCursor = errors.New("invalid read cursor or limit")

// Log is the transaction log contract.  Append assigns the event its
// cursor position and timestamp.  ReadSince returns events with ID
// greater than the cursor in ascending order along with the cursor
// to resume from; a short or empty result means the caller has
// caught up.
type Log interface {
    Append(ctx context.Context, ev *model.LedgerEvent) error
    ReadSince(ctx context.Context, cursor uint64, limit int) ([]model.LedgerEvent, uint64, error)
}

// AlertNotifier receives append failures.  A failed append cannot
// undo the state change it was recording, but it breaks
// auditability, so it must reach an operator instead of being
// dropped.
type AlertNotifier interface {
    AppendFailed(ctx context.Context, ev model.LedgerEvent, cause error)
}
