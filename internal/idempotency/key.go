// Package idempotency derives the deterministic key that names one
// intended delivery, and guards concurrent execution against that key.
package idempotency

import (
	"fmt"
	"regexp"
	"strings"
)

// separator must not occur in any of the three fields. userId and
// messageType are opaque identifiers/registry keys controlled by this
// system; localDate is always YYYY-MM-DD. "|" is disallowed in all three by
// construction, so it unambiguously delimits the key.
const separator = "|"

var localDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Key derives the idempotency key for one intended delivery:
//
//	userId "|" messageType "|" localSendDate(YYYY-MM-DD in the user's zone)
//
// The date must already be formatted in the user's zone (see tz.LocalDate)
// so two schedulers computing the same occurrence always agree. The result
// is stable, deterministic, and carries no clock-dependent component: no
// timestamps, no counters.
func Key(userID, messageType, localDate string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("idempotency key: empty userId")
	}
	if messageType == "" {
		return "", fmt.Errorf("idempotency key: empty messageType")
	}
	if !localDatePattern.MatchString(localDate) {
		return "", fmt.Errorf("idempotency key: malformed local date %q", localDate)
	}
	for _, field := range []string{userID, messageType} {
		if strings.Contains(field, separator) {
			return "", fmt.Errorf("idempotency key: field %q contains reserved separator", field)
		}
	}
	return strings.Join([]string{userID, messageType, localDate}, separator), nil
}

// Parts is the parsed form of a Key.
type Parts struct {
	UserID      string
	MessageType string
	LocalDate   string
}

// Parse validates that key is exactly three non-empty parts separated by
// the reserved separator, with a well-formed date in the last position, and
// returns them. It rejects anything else rather than guessing.
func Parse(key string) (Parts, error) {
	fields := strings.Split(key, separator)
	if len(fields) != 3 {
		return Parts{}, fmt.Errorf("idempotency key: expected 3 parts, got %d", len(fields))
	}
	for _, f := range fields {
		if f == "" {
			return Parts{}, fmt.Errorf("idempotency key: empty part in %q", key)
		}
	}
	if !localDatePattern.MatchString(fields[2]) {
		return Parts{}, fmt.Errorf("idempotency key: malformed local date %q", fields[2])
	}
	return Parts{UserID: fields[0], MessageType: fields[1], LocalDate: fields[2]}, nil
}
