package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Postgres error codes raised when concurrent transactions contend for the same slot.
const (
	pqSerializationFailure = "40001"
	pqLockNotAvailable     = "55P03"

	// Raised when an id is not a valid uuid literal.
	pqInvalidTextRepresentation = "22P02"
)

// noSuchRow reports whether a lookup by id found nothing. Ids the uuid columns reject count as
// unknown ids rather than server failures.
func noSuchRow(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}

// slotContention reports whether err is a Postgres contention failure for a slot.
func slotContention(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqLockNotAvailable
}

// bookingError keeps typed errors, maps contention to a slot conflict and hides everything else.
func bookingError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if slotContention(err) {
		return appErrors.Wrap(err, appErrors.ErrSlotUnavailable.Code, appErrors.ErrSlotUnavailable.Status, appErrors.ErrSlotUnavailable.Message)
	}
	return appErrors.Internal(err, message)
}
