// Package tz implements all conversions between a user's calendar intent
// ("9am on their birthday") and absolute UTC instants, and all predicates
// about "is today their event day" in a user's IANA timezone.
//
// All arithmetic goes through the standard library's time package, which
// resolves zone names against the IANA tzdata database available to the
// process (the system zoneinfo; the binary does not embed tzdata). No third-party zone
// library in the reference corpus does this kind of wall-clock-anchored
// arithmetic; time.LoadLocation plus time.Date is the idiomatic and only
// necessary tool for it.
package tz

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// InvalidTimeSpec is returned for invalid zone names, invalid calendar
// dates, or engine-internal overflow. Callers must never silently coerce
// around it.
type InvalidTimeSpec struct {
	Reason string
}

func (e *InvalidTimeSpec) Error() string {
	return fmt.Sprintf("invalid time spec: %s", e.Reason)
}

var errEmptyZone = errors.New("empty zone name")

// EventDate is a calendar date with year-of-origin semantics: Month and Day
// drive yearly recurrence, Year is retained for composers (e.g. "turns 30").
type EventDate struct {
	Year  int
	Month time.Month
	Day   int
}

// SendHour and SendMinute are the fixed local send time for yearly
// greetings (09:00 local). CalculateSendTime uses these constants directly;
// strategies do not supply their own send time.
const (
	SendHour   = 9
	SendMinute = 0
)

// ValidateZone accepts a zone name iff the IANA database resolves it to a
// concrete rule set. Three-letter abbreviations (EST, PST, ...) are
// rejected: LoadLocation resolves some of them (EST, MST, HST) as legacy
// zones, so any three-letter upper-case name other than UTC is refused
// before lookup. UTC is always accepted.
func ValidateZone(zone string) (*time.Location, error) {
	if zone == "" {
		return nil, &InvalidTimeSpec{Reason: errEmptyZone.Error()}
	}
	if len(zone) == 3 && zone != "UTC" && strings.Trim(zone, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") == "" {
		return nil, &InvalidTimeSpec{Reason: fmt.Sprintf("zone abbreviation %q is not accepted", zone)}
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, &InvalidTimeSpec{Reason: fmt.Sprintf("unknown zone %q: %v", zone, err)}
	}
	return loc, nil
}

// validateMonthDay rejects calendar dates that time.Date would silently
// normalize (e.g. month=13, day=32), except for the documented Feb 29
// fallback which callers resolve themselves via resolveLocalDate.
func validateMonthDay(month time.Month, day int) error {
	if month < time.January || month > time.December {
		return &InvalidTimeSpec{Reason: fmt.Sprintf("invalid month %d", month)}
	}
	if day < 1 || day > 31 {
		return &InvalidTimeSpec{Reason: fmt.Sprintf("invalid day %d", day)}
	}
	// Reject combinations that can never be valid in any year (Apr 31, Feb 30...).
	daysInMonth := 31
	switch month {
	case time.April, time.June, time.September, time.November:
		daysInMonth = 30
	case time.February:
		daysInMonth = 29 // leap-year max; resolveLocalDate handles non-leap fallback.
	}
	if day > daysInMonth {
		return &InvalidTimeSpec{Reason: fmt.Sprintf("day %d does not exist in month %d", day, month)}
	}
	return nil
}

// resolveLocalDate returns the (month, day) to actually schedule against in
// localYear, applying the Feb 29 fallback: in a non-leap local year, Feb 29
// events fall back to Feb 28 (never Mar 1).
func resolveLocalDate(eventDate EventDate, localYear int) (time.Month, int) {
	if eventDate.Month == time.February && eventDate.Day == 29 && !isLeapYear(localYear) {
		return time.February, 28
	}
	return eventDate.Month, eventDate.Day
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// CalculateSendTime constructs the wall-clock moment
// {year=current_local_year(zone), month=eventDate.month, day=eventDate.day,
// hour=09, minute=00, second=0} in zone and converts it to UTC. The year is
// taken from the user's current local date in zone, never from
// eventDate.Year.
//
// DST policy: a wall-clock time that falls in a spring-forward gap resolves
// to the first existing instant after the gap; a wall-clock time that falls
// in a fall-back ambiguity resolves to the earlier of the two candidate
// instants. Go's time.Date already implements the "earlier occurrence"
// rule for ambiguous local times and normalizes gap times forward, so both
// policies fall out of a single call — this is exercised explicitly in
// tz_test.go against America/New_York's fall-back transition.
func CalculateSendTime(eventDate EventDate, zone string, now time.Time) (time.Time, error) {
	loc, err := ValidateZone(zone)
	if err != nil {
		return time.Time{}, err
	}
	if err := validateMonthDay(eventDate.Month, eventDate.Day); err != nil {
		return time.Time{}, err
	}

	localNow := now.In(loc)
	month, day := resolveLocalDate(eventDate, localNow.Year())

	sendTime := time.Date(localNow.Year(), month, day, SendHour, SendMinute, 0, 0, loc)
	if sendTime.Month() != month || sendTime.Day() != day {
		// time.Date silently normalizes invalid combinations; treat as overflow.
		return time.Time{}, &InvalidTimeSpec{Reason: fmt.Sprintf("calendar date %d-%02d-%02d does not exist in %d", localNow.Year(), month, day, localNow.Year())}
	}
	return sendTime.UTC(), nil
}

// IsEventToday reports whether the local calendar date of now in zone has
// (month, day) equal to eventDate's (month, day), applying the same Feb 29
// fallback as CalculateSendTime so the two functions never disagree about
// which day is "the" occurrence.
func IsEventToday(eventDate EventDate, zone string, now time.Time) (bool, error) {
	loc, err := ValidateZone(zone)
	if err != nil {
		return false, err
	}
	if err := validateMonthDay(eventDate.Month, eventDate.Day); err != nil {
		return false, err
	}

	localNow := now.In(loc)
	month, day := resolveLocalDate(eventDate, localNow.Year())
	return localNow.Month() == month && localNow.Day() == day, nil
}

// LocalDate formats instant's calendar date in zone as YYYY-MM-DD, the form
// the idempotency key uses.
func LocalDate(instant time.Time, zone string) (string, error) {
	loc, err := ValidateZone(zone)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format("2006-01-02"), nil
}

// ConvertZone reports instant's wall-clock date and time as observed in
// toZone. fromZone is accepted for interface symmetry with the spec but is
// unused: instant is already an absolute point in time, so only the target
// zone affects the result.
func ConvertZone(instant time.Time, fromZone, toZone string) (time.Time, error) {
	if fromZone != "" {
		if _, err := ValidateZone(fromZone); err != nil {
			return time.Time{}, err
		}
	}
	loc, err := ValidateZone(toZone)
	if err != nil {
		return time.Time{}, err
	}
	return instant.In(loc), nil
}
