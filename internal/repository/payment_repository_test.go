package repository

import (
    "context"
    "errors"
    "regexp"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

func newPayMock(t *testing.T) (*PaymentRepo, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock: %v", err)
    }
    t.Cleanup(func() { db.Close() })
    return NewPaymentRepo(db), mock
}

func TestPaymentCreateLandsWhenUnblocked(t *testing.T) {
    repo, mock := newPayMock(t)

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_attempts")).
        WithArgs(uint64(7), "key-1", uint32(5000), model.PaymentPending,
            uint64(7), model.PaymentPending, model.PaymentSucceeded,
            model.PaymentFailed, model.FailureTimeout).
        WillReturnResult(sqlmock.NewResult(31, 1))

    a := &model.PaymentAttempt{
        ReservationID:  7,
        IdempotencyKey: "key-1",
        AmountCents:    5000,
        State:          model.PaymentPending,
    }
    if err := repo.Create(context.Background(), a); err != nil {
        t.Fatalf("Create: %v", err)
    }
    if a.ID != 31 {
        t.Fatalf("a.ID = %d, want 31", a.ID)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("expectations: %v", err)
    }
}

// The guarded insert affects zero rows when the reservation already
// has a blocking attempt; the caller gets ErrChargeConflict instead
// of a second row.
func TestPaymentCreateBlockedByExistingAttempt(t *testing.T) {
    repo, mock := newPayMock(t)

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_attempts")).
        WillReturnResult(sqlmock.NewResult(0, 0))

    a := &model.PaymentAttempt{
        ReservationID:  7,
        IdempotencyKey: "key-2",
        AmountCents:    5000,
        State:          model.PaymentPending,
    }
    err := repo.Create(context.Background(), a)
    if !errors.Is(err, ErrChargeConflict) {
        t.Fatalf("Create = %v, want ErrChargeConflict", err)
    }
    if a.ID != 0 {
        t.Fatalf("a.ID = %d, want 0 on conflict", a.ID)
    }
}

func TestPaymentResolveStale(t *testing.T) {
    repo, mock := newPayMock(t)

    mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_attempts")).
        WithArgs(model.PaymentSucceeded, "ch_1", "", uint64(31), model.PaymentPending).
        WillReturnResult(sqlmock.NewResult(0, 0))

    err := repo.Resolve(context.Background(), 31, model.PaymentPending, model.PaymentSucceeded, "ch_1", "")
    if !errors.Is(err, ErrStaleTransition) {
        t.Fatalf("Resolve = %v, want ErrStaleTransition", err)
    }
}
