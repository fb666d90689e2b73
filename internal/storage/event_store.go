package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attune-hq/attune/internal/core"
)

// EventStore manages calendar observations.
type EventStore struct {
	db *DB
}

// NewEventStore creates an event store
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Upsert records an observed event. Re-observing the same event id replaces
// the stored metadata so edits and reschedules flow through.
func (s *EventStore) Upsert(ev core.CalendarEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("%w: event id", core.ErrMissingRequired)
	}

	attendees, err := json.Marshal(ev.Attendees)
	if err != nil {
		return fmt.Errorf("failed to marshal attendees: %w", err)
	}

	_, err = s.db.conn.Exec(`
		INSERT INTO calendar_observations
			(event_id, summary, start_time, end_time, attendees, location, is_recurring, organizer_email, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			summary = excluded.summary,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			attendees = excluded.attendees,
			location = excluded.location,
			is_recurring = excluded.is_recurring,
			organizer_email = excluded.organizer_email,
			observed_at = excluded.observed_at
	`, ev.EventID, ev.Summary, FormatTime(ev.Start), FormatTime(ev.End),
		string(attendees), ev.Location, boolInt(ev.IsRecurring),
		ev.OrganizerEmail, FormatTime(ev.ObservedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// Get retrieves one event by source id
func (s *EventStore) Get(eventID string) (*core.CalendarEvent, error) {
	row := s.db.conn.QueryRow(`
		SELECT event_id, summary, start_time, end_time, attendees,
		       location, is_recurring, organizer_email, observed_at
		FROM calendar_observations WHERE event_id = ?
	`, eventID)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// CountStartingSince counts events whose start falls after the day boundary.
func (s *EventStore) CountStartingSince(now time.Time, days int) (int, error) {
	var n int
	err := s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM calendar_observations WHERE start_time > ?
	`, DaysAgo(now, days)).Scan(&n)
	return n, err
}

func scanEvent(row rowScanner) (*core.CalendarEvent, error) {
	var ev core.CalendarEvent
	var summary, location, organizer sql.NullString
	var attendees string
	var start, end, observed string
	var recurring int

	err := row.Scan(&ev.EventID, &summary, &start, &end, &attendees,
		&location, &recurring, &organizer, &observed)
	if err != nil {
		return nil, err
	}

	ev.Summary = summary.String
	ev.Location = location.String
	ev.OrganizerEmail = organizer.String
	ev.IsRecurring = recurring != 0
	ev.Attendees = []string{}
	if attendees != "" {
		if err := json.Unmarshal([]byte(attendees), &ev.Attendees); err != nil {
			return nil, fmt.Errorf("bad attendees: %w", err)
		}
	}
	if ev.Start, err = ParseTime(start); err != nil {
		return nil, err
	}
	if ev.End, err = ParseTime(end); err != nil {
		return nil, err
	}
	if ev.ObservedAt, err = ParseTime(observed); err != nil {
		return nil, err
	}
	return &ev, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
