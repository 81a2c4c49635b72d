package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// TripRepo provides data access to the trips table.  Trips are
// created once by schedule management and read by the booking core
// for pricing and display.  The connection is opened with
// parseTime=true and loc=UTC, so DATETIME columns scan directly
// into time.Time values in UTC.
type TripRepo struct {
    db *sql.DB
}

// NewTripRepo returns a new TripRepo bound to the provided database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// DB exposes the underlying database handle so callers can begin
// transactions that span multiple repositories.
func (r *TripRepo) DB() *sql.DB { return r.db }

// CreateTx inserts a new trip within the provided transaction and
// populates the generated ID on the record.  The caller must commit
// or roll back the transaction.
func (r *TripRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Trip) error {
    const q = `INSERT INTO trips (origin, destination, departs_at, capacity, price_cents)
               VALUES (?, ?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q,
        t.Origin, t.Destination, t.DepartsAt.UTC().Format("2006-01-02 15:04:05"), t.Capacity, t.PriceCents)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    return nil
}

// GetByID returns the trip with the given ID.  It returns
// ErrTripNotFound when no row matches.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
    const q = `SELECT id, origin, destination, departs_at, capacity, price_cents, created_at
               FROM trips WHERE id = ?`
    var t model.Trip
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &t.ID, &t.Origin, &t.Destination, &t.DepartsAt, &t.Capacity, &t.PriceCents, &t.CreatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrTripNotFound
        }
        return nil, err
    }
    return &t, nil
}

// List returns upcoming trips ordered by departure time.  Trips that
// have already departed are excluded.  When no trips exist an empty
// slice is returned.
func (r *TripRepo) List(ctx context.Context, limit int) ([]model.Trip, error) {
    if limit <= 0 || limit > 200 {
        limit = 50
    }
    const q = `SELECT id, origin, destination, departs_at, capacity, price_cents, created_at
               FROM trips
               WHERE departs_at > UTC_TIMESTAMP()
               ORDER BY departs_at ASC
               LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    trips := make([]model.Trip, 0)
    for rows.Next() {
        var t model.Trip
        if err := rows.Scan(&t.ID, &t.Origin, &t.Destination, &t.DepartsAt, &t.Capacity, &t.PriceCents, &t.CreatedAt); err != nil {
            return nil, err
        }
        trips = append(trips, t)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return trips, nil
}
