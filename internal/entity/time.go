package entity

import "time"

// FromUnix converts a stored timestamp. 0 means "never" and maps to the
// zero time.
func FromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// ToUnix is the inverse of FromUnix.
func ToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// StoredTime returns t as it reads back from storage: whole seconds in UTC.
func StoredTime(t time.Time) time.Time {
	return FromUnix(ToUnix(t))
}
