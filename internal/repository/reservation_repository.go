package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// ReservationRepo provides data access to the reservations table.
// Every state change goes through Transition, which performs a
// guarded UPDATE so that concurrent operations on the same
// reservation (explicit cancel racing the expiry sweep, duplicate
// confirms) resolve to exactly one winner.  All timestamps are UTC.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the
// given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts a reservation in the HELD state and populates the
// generated ID and timestamps on the record.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
    const q = `INSERT INTO reservations
               (trip_id, customer_id, quantity, state, hold_token, amount_cents, expires_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    result, err := r.db.ExecContext(ctx, q,
        res.TripID, res.CustomerID, res.Quantity, res.State, res.HoldToken,
        res.AmountCents, res.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    res.ID = uint64(id)
    now := time.Now().UTC()
    res.CreatedAt = now
    res.UpdatedAt = now
    return nil
}

// Get returns the reservation with the given ID.  It returns
// ErrReservationNotFound when no row matches.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
    const q = `SELECT id, trip_id, customer_id, quantity, state, hold_token, amount_cents,
                      expires_at, created_at, updated_at
               FROM reservations WHERE id = ?`
    var res model.Reservation
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &res.ID, &res.TripID, &res.CustomerID, &res.Quantity, &res.State, &res.HoldToken,
        &res.AmountCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrReservationNotFound
        }
        return nil, err
    }
    return &res, nil
}

// Transition moves a reservation from one state to another with a
// guarded UPDATE.  It returns ErrStaleTransition when the row is no
// longer in the expected `from` state, which callers treat as losing
// a race rather than as a failure.  ErrReservationNotFound is
// returned when the reservation does not exist at all.
func (r *ReservationRepo) Transition(ctx context.Context, id uint64, from, to string) error {
    const q = `UPDATE reservations
               SET state = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND state = ?`
    result, err := r.db.ExecContext(ctx, q, to, id, from)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // Distinguish a missing row from a lost race.
        var state string
        const sel = `SELECT state FROM reservations WHERE id = ?`
        if serr := r.db.QueryRowContext(ctx, sel, id).Scan(&state); serr != nil {
            if errors.Is(serr, sql.ErrNoRows) {
                return ErrReservationNotFound
            }
            return serr
        }
        return ErrStaleTransition
    }
    return nil
}

// ListExpired returns reservations still HELD whose expiry timestamp
// has passed.  The expiry sweep calls this periodically; the guarded
// Transition keeps the sweep exactly-once even when multiple sweeps
// or an explicit cancel race on the same reservation.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    const q = `SELECT id, trip_id, customer_id, quantity, state, hold_token, amount_cents,
                      expires_at, created_at, updated_at
               FROM reservations
               WHERE state = ? AND expires_at <= ?
               ORDER BY expires_at ASC
               LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, model.ReservationHeld, now.UTC().Format("2006-01-02 15:04:05"), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        var res model.Reservation
        if err := rows.Scan(
            &res.ID, &res.TripID, &res.CustomerID, &res.Quantity, &res.State, &res.HoldToken,
            &res.AmountCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        out = append(out, res)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// ListLeakedHolds returns tokens of seat holds still HELD whose
// reservation already reached RELEASED or EXPIRED.  The transition
// and the seat release are separate statements, so a crash between
// them leaves the hold stranded with no sweep revisiting it (the
// expiry sweep only selects HELD reservations); the repair pass
// releases whatever this returns.
func (r *ReservationRepo) ListLeakedHolds(ctx context.Context, limit int) ([]string, error) {
    if limit <= 0 || limit > 500 {
        limit = 100
    }
    const q = `SELECT r.hold_token
               FROM reservations r
               JOIN seat_holds h ON h.token = r.hold_token
               WHERE r.state IN (?, ?) AND h.state = ?
               ORDER BY r.updated_at ASC
               LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q,
        model.ReservationReleased, model.ReservationExpired, model.HoldStateHeld, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    tokens := make([]string, 0)
    for rows.Next() {
        var token string
        if err := rows.Scan(&token); err != nil {
            return nil, err
        }
        tokens = append(tokens, token)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return tokens, nil
}

// ListByCustomer returns all reservations made by a customer,
// newest first.  When none exist an empty slice is returned.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
    const q = `SELECT id, trip_id, customer_id, quantity, state, hold_token, amount_cents,
                      expires_at, created_at, updated_at
               FROM reservations
               WHERE customer_id = ?
               ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, customerID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        var res model.Reservation
        if err := rows.Scan(
            &res.ID, &res.TripID, &res.CustomerID, &res.Quantity, &res.State, &res.HoldToken,
            &res.AmountCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        out = append(out, res)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
