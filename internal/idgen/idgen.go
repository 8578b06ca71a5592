// Package idgen generates the opaque IDs used for message log rows.
package idgen

import "github.com/google/uuid"

// NewMessageLogID generates a new message log primary key. UUIDv7 is
// time-ordered, so primary-key locality on insert stays good even at the
// volume a daily precompute run produces.
func NewMessageLogID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the OS entropy source is broken; fall back to
		// v4 rather than panicking the precompute loop.
		return uuid.NewString()
	}
	return id.String()
}
