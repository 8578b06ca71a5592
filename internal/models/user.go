package models

import "time"

// User is the read-only slice of account data the scheduler needs. The
// system of record for accounts lives elsewhere; this is a local
// projection kept current by whatever ingestion feeds store.UserRepository.
type User struct {
	ID        string
	Name      string
	Email     string
	Timezone  string
	BirthDate *EventDate
	// AnniversaryDate is nil for users with no work-anniversary configured
	// (e.g. not yet hired, or the field is simply unset).
	AnniversaryDate *EventDate
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventDate mirrors tz.EventDate so models stays free of a dependency on
// the tz package's richer API; callers convert at the boundary.
type EventDate struct {
	Year  int
	Month time.Month
	Day   int
}

// IsDeleted reports whether the user has been soft-deleted. Deleted users
// are excluded from precomputation and any of their pending, non-terminal
// message logs are retired rather than sent.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}
