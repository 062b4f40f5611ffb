// Package timeutil is the single place the service does time
// normalization and comparison. Every timestamp that crosses a package
// boundary goes through here first so that naive values and values with
// explicit zone markers resolve the same way everywhere.
package timeutil

import (
	"strings"
	"time"
)

// naiveLayouts are accepted for timestamps that carry no zone marker.
// They are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC normalizes t to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Parse reads a timestamp string. Values with an explicit offset or Z
// suffix are honored and converted to UTC; naive values are taken as UTC
// outright.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// AddMinutes returns t shifted by m minutes, in UTC.
func AddMinutes(t time.Time, m int) time.Time {
	return t.UTC().Add(time.Duration(m) * time.Minute)
}

// IsBefore reports whether a is strictly before b, comparing in UTC.
func IsBefore(a, b time.Time) bool {
	return a.UTC().Before(b.UTC())
}

// IsAfter reports whether a is strictly after b, comparing in UTC.
func IsAfter(a, b time.Time) bool {
	return a.UTC().After(b.UTC())
}

// Min returns the earlier of a and b.
func Min(a, b time.Time) time.Time {
	if IsBefore(b, a) {
		return b.UTC()
	}
	return a.UTC()
}
