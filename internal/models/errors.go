package models

import "errors"

// ErrDuplicateKey is returned by MessageLogStore.Insert when a row with the
// same idempotency key already exists. Precompute treats this as success:
// the occurrence is already covered, whichever run got there first.
var ErrDuplicateKey = errors.New("message log: duplicate idempotency key")

// ErrNotFound is returned when a lookup by id or key matches no row.
var ErrNotFound = errors.New("message log: not found")

// ErrStatusConflict is returned by a compare-and-set update when the row's
// current status no longer matches the expected precondition — another
// worker or the recovery loop moved it first.
var ErrStatusConflict = errors.New("message log: status conflict")
