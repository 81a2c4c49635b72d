package repository

import (
    "context"
    "errors"
    "regexp"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

func newResMock(t *testing.T) (*ReservationRepo, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock: %v", err)
    }
    t.Cleanup(func() { db.Close() })
    return NewReservationRepo(db), mock
}

func TestTransitionWinsRace(t *testing.T) {
    repo, mock := newResMock(t)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations")).
        WithArgs(model.ReservationConfirmed, uint64(5), model.ReservationHeld).
        WillReturnResult(sqlmock.NewResult(0, 1))

    err := repo.Transition(context.Background(), 5, model.ReservationHeld, model.ReservationConfirmed)
    if err != nil {
        t.Fatalf("Transition: %v", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("expectations: %v", err)
    }
}

func TestTransitionLosesRace(t *testing.T) {
    repo, mock := newResMock(t)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations")).
        WithArgs(model.ReservationExpired, uint64(5), model.ReservationHeld).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT state FROM reservations")).
        WithArgs(uint64(5)).
        WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(model.ReservationReleased))

    err := repo.Transition(context.Background(), 5, model.ReservationHeld, model.ReservationExpired)
    if !errors.Is(err, ErrStaleTransition) {
        t.Fatalf("Transition = %v, want ErrStaleTransition", err)
    }
}

func TestTransitionMissingRow(t *testing.T) {
    repo, mock := newResMock(t)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations")).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT state FROM reservations")).
        WithArgs(uint64(99)).
        WillReturnRows(sqlmock.NewRows([]string{"state"}))

    err := repo.Transition(context.Background(), 99, model.ReservationHeld, model.ReservationReleased)
    if !errors.Is(err, ErrReservationNotFound) {
        t.Fatalf("Transition = %v, want ErrReservationNotFound", err)
    }
}

func TestGetNotFound(t *testing.T) {
    repo, mock := newResMock(t)

    mock.ExpectQuery(regexp.QuoteMeta("SELECT id, trip_id, customer_id")).
        WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"id"}))

    _, err := repo.Get(context.Background(), 7)
    if !errors.Is(err, ErrReservationNotFound) {
        t.Fatalf("Get = %v, want ErrReservationNotFound", err)
    }
}

func TestListLeakedHoldsReturnsTokens(t *testing.T) {
    repo, mock := newResMock(t)

    mock.ExpectQuery(regexp.QuoteMeta("SELECT r.hold_token")).
        WithArgs(model.ReservationReleased, model.ReservationExpired, model.HoldStateHeld, 50).
        WillReturnRows(sqlmock.NewRows([]string{"hold_token"}).AddRow("tok-a").AddRow("tok-b"))

    tokens, err := repo.ListLeakedHolds(context.Background(), 50)
    if err != nil {
        t.Fatalf("ListLeakedHolds: %v", err)
    }
    if len(tokens) != 2 || tokens[0] != "tok-a" || tokens[1] != "tok-b" {
        t.Fatalf("tokens = %v, want [tok-a tok-b]", tokens)
    }
}

func TestCreatePopulatesID(t *testing.T) {
    repo, mock := newResMock(t)

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
        WillReturnResult(sqlmock.NewResult(12, 1))

    res := &model.Reservation{
        TripID: 1, CustomerID: 42, Quantity: 2,
        State: model.ReservationHeld, HoldToken: "tok", AmountCents: 5000,
    }
    if err := repo.Create(context.Background(), res); err != nil {
        t.Fatalf("Create: %v", err)
    }
    if res.ID != 12 {
        t.Fatalf("res.ID = %d, want 12", res.ID)
    }
}
