// Package detect runs the pattern detectors and the suggestion lifecycle.
// Detectors are pure reads over the store; the lifecycle manager owns
// autonomy gating, dedup, insertion, expiry, and garbage collection.
package detect

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/storage"
)

// Manager runs detectors against the store.
type Manager struct {
	db          *storage.DB
	suggestions *storage.SuggestionStore
	autonomy    *storage.AutonomyStore
}

// NewManager creates a detection manager
func NewManager(db *storage.DB) *Manager {
	return &Manager{
		db:          db,
		suggestions: storage.NewSuggestionStore(db),
		autonomy:    storage.NewAutonomyStore(db),
	}
}

// Each detector caps its output and excludes contacts that already carry a
// pending suggestion of the same type, so repeated runs produce no churn.
const detectorLimit = 5

// DetectReachouts finds contacts with 2+ unreplied inbound messages in the
// last 7 days.
func (m *Manager) DetectReachouts(now time.Time) ([]core.Suggestion, error) {
	rows, err := m.db.Conn().Query(`
		SELECT e.from_email, COUNT(*) as cnt, c.name, MAX(e.timestamp) as latest
		FROM email_observations e
		LEFT JOIN contacts c ON c.email = e.from_email
		WHERE e.is_inbound = 1
		  AND e.replied = 0
		  AND e.timestamp >= ?
		GROUP BY e.from_email
		HAVING cnt >= 2
		  AND e.from_email NOT IN (
			SELECT COALESCE(contact_email, '') FROM suggestions
			WHERE type = 'reachout' AND status = 'pending'
		  )
		ORDER BY cnt DESC
		LIMIT ?
	`, storage.DaysAgo(now, 7), detectorLimit)
	if err != nil {
		return nil, fmt.Errorf("reachout query: %w", err)
	}
	defer rows.Close()

	var result []core.Suggestion
	for rows.Next() {
		var email, latest string
		var count int64
		var name sql.NullString
		if err := rows.Scan(&email, &count, &name, &latest); err != nil {
			return nil, err
		}

		display := displayName(name, email)
		result = append(result, core.Suggestion{
			Type:         core.SuggestReachout,
			Title:        fmt.Sprintf("%s has been trying to reach you", display),
			Description:  fmt.Sprintf("%s has sent %d unanswered emails in the last 7 days. Latest: %s.", display, count, dayOf(latest)),
			ContactEmail: email,
			Confidence:   0.85,
			Context:      contextJSON(map[string]interface{}{"email_count": count, "latest": latest}),
			Status:       core.StatusPending,
			CreatedAt:    now,
			ExpiresAt:    expiry(now, 3),
		})
	}
	return result, rows.Err()
}

// DetectUnansweredThreads finds inbound messages from known contacts with
// no reply after 1 to 7 days.
func (m *Manager) DetectUnansweredThreads(now time.Time) ([]core.Suggestion, error) {
	rows, err := m.db.Conn().Query(`
		SELECT e.from_email, e.subject, e.timestamp, e.thread_id, c.name
		FROM email_observations e
		LEFT JOIN contacts c ON c.email = e.from_email
		WHERE e.is_inbound = 1
		  AND e.replied = 0
		  AND e.timestamp < ?
		  AND e.timestamp >= ?
		  AND e.from_email NOT IN (
			SELECT COALESCE(contact_email, '') FROM suggestions
			WHERE type = 'respond' AND status = 'pending'
		  )
		ORDER BY c.interaction_count DESC, e.timestamp ASC
		LIMIT ?
	`, storage.DaysAgo(now, 1), storage.DaysAgo(now, 7), detectorLimit)
	if err != nil {
		return nil, fmt.Errorf("unanswered query: %w", err)
	}
	defer rows.Close()

	var result []core.Suggestion
	for rows.Next() {
		var email, ts, threadID string
		var subject, name sql.NullString
		if err := rows.Scan(&email, &subject, &ts, &threadID, &name); err != nil {
			return nil, err
		}

		display := displayName(name, email)
		subj := subject.String
		if subj == "" {
			subj = "(no subject)"
		}
		result = append(result, core.Suggestion{
			Type:         core.SuggestRespond,
			Title:        fmt.Sprintf("Reply to %s about %q", display, truncate(subj, 40)),
			Description:  fmt.Sprintf("You haven't replied to %s about %q. Sent %s.", display, subj, dayOf(ts)),
			ContactEmail: email,
			Confidence:   0.7,
			Context:      contextJSON(map[string]interface{}{"thread_id": threadID, "subject": subj, "timestamp": ts}),
			Status:       core.StatusPending,
			CreatedAt:    now,
			ExpiresAt:    expiry(now, 3),
		})
	}
	return result, rows.Err()
}

// DetectQuietContacts finds contacts with 3+ interactions whose last touch
// fell in the 5 to 14 day window, so a once-active thread has gone quiet.
func (m *Manager) DetectQuietContacts(now time.Time) ([]core.Suggestion, error) {
	rows, err := m.db.Conn().Query(`
		SELECT c.email, c.name, c.interaction_count, c.last_seen
		FROM contacts c
		WHERE c.last_seen >= ?
		  AND c.last_seen < ?
		  AND c.interaction_count >= 3
		  AND c.email NOT IN (
			SELECT COALESCE(contact_email, '') FROM suggestions
			WHERE type = 'catch_up' AND status = 'pending'
		  )
		ORDER BY c.interaction_count DESC
		LIMIT ?
	`, storage.DaysAgo(now, 14), storage.DaysAgo(now, 5), detectorLimit)
	if err != nil {
		return nil, fmt.Errorf("catch-up query: %w", err)
	}
	defer rows.Close()

	var result []core.Suggestion
	for rows.Next() {
		var email, lastSeen string
		var count int64
		var name sql.NullString
		if err := rows.Scan(&email, &name, &count, &lastSeen); err != nil {
			return nil, err
		}

		display := displayName(name, email)
		confidence := float64(count) / 20.0
		if confidence > 0.9 {
			confidence = 0.9
		}
		result = append(result, core.Suggestion{
			Type:         core.SuggestCatchUp,
			Title:        fmt.Sprintf("Catch up with %s", display),
			Description:  fmt.Sprintf("%s has had %d interactions recently but hasn't been in touch since %s.", display, count, dayOf(lastSeen)),
			ContactEmail: email,
			Confidence:   confidence,
			Context:      contextJSON(map[string]interface{}{"interaction_count": count, "last_seen": lastSeen}),
			Status:       core.StatusPending,
			CreatedAt:    now,
			ExpiresAt:    expiry(now, 7),
		})
	}
	return result, rows.Err()
}

// DetectMeetingLapses finds attendees who appeared in 3+ meetings in the
// 30-to-14-day window with nothing on the calendar since.
func (m *Manager) DetectMeetingLapses(now time.Time) ([]core.Suggestion, error) {
	rows, err := m.db.Conn().Query(`
		SELECT attendee_email, COUNT(*) as meeting_count, name
		FROM (
			SELECT je.value as attendee_email, c.name
			FROM calendar_observations ce,
			     json_each(ce.attendees) je
			LEFT JOIN contacts c ON c.email = je.value
			WHERE ce.start_time >= ?
			  AND ce.start_time < ?
		)
		GROUP BY attendee_email
		HAVING meeting_count >= 3
		  AND attendee_email NOT IN (
			SELECT je2.value
			FROM calendar_observations ce2,
			     json_each(ce2.attendees) je2
			WHERE ce2.start_time >= ?
		  )
		  AND attendee_email NOT IN (
			SELECT COALESCE(contact_email, '') FROM suggestions
			WHERE type = 'schedule_meeting' AND status = 'pending'
		  )
		ORDER BY meeting_count DESC
		LIMIT ?
	`, storage.DaysAgo(now, 30), storage.DaysAgo(now, 14), storage.DaysAgo(now, 14), detectorLimit)
	if err != nil {
		return nil, fmt.Errorf("meeting-lapse query: %w", err)
	}
	defer rows.Close()

	var result []core.Suggestion
	for rows.Next() {
		var email string
		var count int64
		var name sql.NullString
		if err := rows.Scan(&email, &count, &name); err != nil {
			return nil, err
		}

		display := displayName(name, email)
		result = append(result, core.Suggestion{
			Type:         core.SuggestScheduleMeeting,
			Title:        fmt.Sprintf("Schedule meeting with %s", display),
			Description:  fmt.Sprintf("You've had %d meetings with %s in the last month but none upcoming. Time to schedule one?", count, display),
			ContactEmail: email,
			Confidence:   0.6,
			Context:      contextJSON(map[string]interface{}{"meeting_count_30d": count}),
			Status:       core.StatusPending,
			CreatedAt:    now,
			ExpiresAt:    expiry(now, 7),
		})
	}
	return result, rows.Err()
}

func displayName(name sql.NullString, email string) string {
	if name.Valid && name.String != "" {
		return name.String
	}
	return email
}

func dayOf(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}

// truncate caps a string at max runes without splitting a multibyte
// character mid-sequence.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func expiry(now time.Time, days int) *time.Time {
	t := now.UTC().AddDate(0, 0, days)
	return &t
}

func contextJSON(fields map[string]interface{}) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(data)
}
