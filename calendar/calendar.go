// Package calendar computes birthday offsets on the bot's civil calendar.
package calendar

import (
	"time"

	"hbdbot/pkg/hbd"
)

// wrapThreshold is the naive offset beyond which a birthday is counted
// against the neighbouring year instead.
const wrapThreshold = 363

// IsLeapYear reports whether year has a February 29.
func IsLeapYear(year int) bool {
	switch {
	case year%400 == 0:
		return true
	case year%100 == 0:
		return false
	default:
		return year%4 == 0
	}
}

// DayOffset returns the signed number of days between today and the user's
// birthday: 0 means today, 1 yesterday, -1 tomorrow. The second result is
// false when no birthday is on record.
//
// A February 29 birthday is celebrated on March 1 in non-leap years. Offsets
// that reach across the new year are folded so that a birthday on January 1
// is -1 on December 31.
func DayOffset(today time.Time, birthday hbd.MonthDay) (int, bool) {
	if birthday.IsZero() {
		return 0, false
	}

	year := today.Year()
	month, day := birthday.Month, birthday.Day
	if month == time.February && day == 29 && !IsLeapYear(year) {
		month, day = time.March, 1
	}

	// Both dates are pinned to UTC midnight so DST shifts cannot skew the count.
	t := time.Date(year, today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	offset := int(t.Sub(b).Hours() / 24)

	leap := 0
	if IsLeapYear(year) {
		leap = 1
	}
	if offset-leap >= wrapThreshold {
		offset = offset - leap - 365
	}
	if offset+leap <= -wrapThreshold {
		offset = offset + leap + 365
	}
	return offset, true
}

// IsToday reports whether the birthday falls on today. It is false when no
// birthday is on record.
func IsToday(today time.Time, birthday hbd.MonthDay) bool {
	offset, ok := DayOffset(today, birthday)
	return ok && offset == 0
}

// Today returns midnight of the civil day that contains now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same civil day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
