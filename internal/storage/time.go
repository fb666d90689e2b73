package storage

import (
	"database/sql"
	"time"
)

// Timestamps are stored as RFC3339 UTC text so that lexicographic ordering,
// SQLite's datetime functions, and JULIANDAY arithmetic all agree.

// NowUTC returns the current time truncated to second precision in UTC.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FormatTime renders a timestamp in the canonical column format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses a stored timestamp. Empty strings map to the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// DayBoundary truncates to the UTC calendar day and renders date-only text.
// Comparing a date-only string against an RFC3339 column keeps the whole
// boundary day in range, since "2026-01-05" sorts before "2026-01-05T00:00:00Z".
func DayBoundary(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DaysAgo returns the day boundary n UTC calendar days before now.
func DaysAgo(now time.Time, n int) string {
	return DayBoundary(now.UTC().AddDate(0, 0, -n))
}

// DaysAhead returns the day boundary n UTC calendar days after now.
func DaysAhead(now time.Time, n int) string {
	return DayBoundary(now.UTC().AddDate(0, 0, n))
}

// scanTime converts a nullable text column to *time.Time.
func scanTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
