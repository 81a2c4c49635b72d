package ledger

import (
    "context"
    "database/sql"
    "errors"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/bus-ticketing/internal/model"
    "github.com/iliyamo/bus-ticketing/internal/repository"
)

// SQLLedger persists seat accounting in the seat_ledger and
// seat_holds tables.  Atomicity of TryHold with respect to
// concurrent callers comes from a single conditional UPDATE: the
// capacity check and the increment happen in one statement, so two
// holds for the last seat can never both succeed.  Confirm and
// Release lock the hold row FOR UPDATE to make finalization
// exactly-once.
type SQLLedger struct {
    db *sql.DB
}

// NewSQLLedger returns a ledger backed by the provided database.
func NewSQLLedger(db *sql.DB) *SQLLedger { return &SQLLedger{db: db} }

// Seed inserts the seat_ledger row for a trip.  The caller supplies
// an open transaction when seeding must be atomic with trip
// creation; see SeedTx.
func (l *SQLLedger) Seed(ctx context.Context, tripID uint64, capacity uint32) error {
    const q = `INSERT INTO seat_ledger (trip_id, capacity, confirmed, held) VALUES (?, ?, 0, 0)`
    _, err := l.db.ExecContext(ctx, q, tripID, capacity)
    return seedErr(err)
}

// SeedTx is Seed within an existing transaction, used when the trip
// row and its ledger entry must be created atomically.
func (l *SQLLedger) SeedTx(ctx context.Context, tx *sql.Tx, tripID uint64, capacity uint32) error {
    const q = `INSERT INTO seat_ledger (trip_id, capacity, confirmed, held) VALUES (?, ?, 0, 0)`
    _, err := tx.ExecContext(ctx, q, tripID, capacity)
    return seedErr(err)
}

// seedErr translates a duplicate-key insert on seat_ledger into the
// shared sentinel.
func seedErr(err error) error {
    var me *mysql.MySQLError
    if errors.As(err, &me) && me.Number == 1062 {
        return repository.ErrDuplicateTrip
    }
    return err
}

// TryHold claims quantity seats for the trip and records a HELD
// token.  The conditional UPDATE both checks availability and
// increments held in a single atomic statement; when it affects no
// rows the trip is either unknown or exhausted.
func (l *SQLLedger) TryHold(ctx context.Context, tripID uint64, quantity uint32) (string, error) {
    tx, err := l.db.BeginTx(ctx, nil)
    if err != nil {
        return "", err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const claim = `UPDATE seat_ledger
                   SET held = held + ?
                   WHERE trip_id = ? AND confirmed + held + ? <= capacity`
    result, err := tx.ExecContext(ctx, claim, quantity, tripID, quantity)
    if err != nil {
        return "", err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return "", err
    }
    if n == 0 {
        var exists int
        const check = `SELECT 1 FROM seat_ledger WHERE trip_id = ?`
        if cerr := tx.QueryRowContext(ctx, check, tripID).Scan(&exists); cerr != nil {
            if errors.Is(cerr, sql.ErrNoRows) {
                return "", ErrUnknownTrip
            }
            return "", cerr
        }
        return "", ErrExhausted
    }

    token, err := newToken()
    if err != nil {
        return "", err
    }
    const insert = `INSERT INTO seat_holds (token, trip_id, quantity, state) VALUES (?, ?, ?, ?)`
    if _, err := tx.ExecContext(ctx, insert, token, tripID, quantity, model.HoldStateHeld); err != nil {
        return "", err
    }
    if err := tx.Commit(); err != nil {
        return "", err
    }
    committed = true
    return token, nil
}

// Confirm moves the hold's quantity from held to confirmed.  A hold
// already CONFIRMED is a no-op; a RELEASED hold returns
// ErrHoldFinalized.
func (l *SQLLedger) Confirm(ctx context.Context, token string) error {
    return l.finalize(ctx, token, model.HoldStateConfirmed)
}

// Release returns the hold's quantity to the available pool.  A hold
// already RELEASED is a no-op; a CONFIRMED hold returns
// ErrHoldFinalized.
func (l *SQLLedger) Release(ctx context.Context, token string) error {
    return l.finalize(ctx, token, model.HoldStateReleased)
}

// finalize applies the HELD -> target transition for a hold and the
// matching counter movement, all inside one transaction with the
// hold row locked.
func (l *SQLLedger) finalize(ctx context.Context, token, target string) error {
    tx, err := l.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const sel = `SELECT trip_id, quantity, state FROM seat_holds WHERE token = ? FOR UPDATE`
    var tripID uint64
    var quantity uint32
    var state string
    if err := tx.QueryRowContext(ctx, sel, token).Scan(&tripID, &quantity, &state); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return ErrHoldNotFound
        }
        return err
    }
    switch state {
    case target:
        // Repeated call with the same outcome: idempotent no-op.
        return nil
    case model.HoldStateHeld:
        // fall through to the counter movement below
    default:
        return ErrHoldFinalized
    }

    var move string
    if target == model.HoldStateConfirmed {
        move = `UPDATE seat_ledger
                SET held = held - ?, confirmed = confirmed + ?
                WHERE trip_id = ? AND held >= ? AND confirmed + ? <= capacity`
    } else {
        move = `UPDATE seat_ledger
                SET held = held - ?
                WHERE trip_id = ? AND held >= ?`
    }
    var result sql.Result
    if target == model.HoldStateConfirmed {
        result, err = tx.ExecContext(ctx, move, quantity, quantity, tripID, quantity, quantity)
    } else {
        result, err = tx.ExecContext(ctx, move, quantity, tripID, quantity)
    }
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrCorrupt
    }

    const upd = `UPDATE seat_holds SET state = ?, finalized_at = UTC_TIMESTAMP() WHERE token = ?`
    if _, err := tx.ExecContext(ctx, upd, target, token); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// Entry reports the current counters for a trip.
func (l *SQLLedger) Entry(ctx context.Context, tripID uint64) (model.LedgerEntry, error) {
    const q = `SELECT trip_id, capacity, confirmed, held FROM seat_ledger WHERE trip_id = ?`
    var e model.LedgerEntry
    err := l.db.QueryRowContext(ctx, q, tripID).Scan(&e.TripID, &e.Capacity, &e.Confirmed, &e.Held)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return model.LedgerEntry{}, ErrUnknownTrip
        }
        return model.LedgerEntry{}, err
    }
    return e, nil
}
