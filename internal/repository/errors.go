package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by the transactional booking paths. Services map
// them onto the API error taxonomy.
var (
	ErrTourNotFound      = errors.New("tour not found")
	ErrTourNotPublished  = errors.New("tour not published")
	ErrDateConflict      = errors.New("student holds an active application for that calendar day")
	ErrCapacityExceeded  = errors.New("tour capacity exceeded")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Postgres error codes that indicate the transaction lost a race or a lock
// and can be retried by the caller.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// IsRetryable reports whether the error is a transient store failure: a
// serialization conflict, deadlock or lock timeout. Nothing was committed when
// it is returned.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return true
	}
	return false
}
