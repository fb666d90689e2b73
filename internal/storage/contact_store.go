package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/attune-hq/attune/internal/core"
)

// ContactStore manages the behavioral contact model.
type ContactStore struct {
	db *DB
}

// NewContactStore creates a contact store
func NewContactStore(db *DB) *ContactStore {
	return &ContactStore{db: db}
}

// interactionFreezeCount is the interaction count past which a contact's
// preferred channel stops following new observations.
const interactionFreezeCount = 5

// Touch records one interaction with a contact, creating the row on first
// sight. Re-observing the same artifact still counts, so interaction_count
// tracks observation passes, not distinct artifacts.
func (s *ContactStore) Touch(email, name string, channel core.Channel, now time.Time) error {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return fmt.Errorf("%w: contact email", core.ErrMissingRequired)
	}

	var nameVal sql.NullString
	if name != "" {
		nameVal = sql.NullString{String: name, Valid: true}
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO contacts (email, name, first_seen, last_seen, interaction_count, preferred_channel)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = COALESCE(excluded.name, contacts.name),
			last_seen = excluded.last_seen,
			interaction_count = contacts.interaction_count + 1,
			preferred_channel = CASE
				WHEN contacts.interaction_count > ? THEN contacts.preferred_channel
				ELSE excluded.preferred_channel
			END
	`, addr, nameVal, FormatTime(now), FormatTime(now), string(channel), interactionFreezeCount)
	if err != nil {
		return fmt.Errorf("failed to record contact interaction: %w", err)
	}
	return nil
}

// Get retrieves a contact by email
func (s *ContactStore) Get(email string) (*core.Contact, error) {
	row := s.db.conn.QueryRow(`
		SELECT email, name, first_seen, last_seen, interaction_count,
		       avg_response_time_mins, preferred_channel, tags
		FROM contacts WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email)))

	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Top returns the most interacted-with contacts, most recent first on ties.
func (s *ContactStore) Top(limit int) ([]core.Contact, error) {
	rows, err := s.db.conn.Query(`
		SELECT email, name, first_seen, last_seen, interaction_count,
		       avg_response_time_mins, preferred_channel, tags
		FROM contacts
		ORDER BY interaction_count DESC, last_seen DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []core.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// Count returns the number of tracked contacts
func (s *ContactStore) Count() (int, error) {
	var n int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&n)
	return n, err
}

// UpdateAvgResponseTimes recomputes each contact's average reply latency
// from measured email latencies where the contact was the inbound sender.
func (s *ContactStore) UpdateAvgResponseTimes() error {
	_, err := s.db.conn.Exec(`
		UPDATE contacts SET avg_response_time_mins = (
			SELECT AVG(reply_time_mins) FROM email_observations
			WHERE from_email = contacts.email
			  AND is_inbound = 1
			  AND replied = 1
			  AND reply_time_mins IS NOT NULL
			  AND reply_time_mins > 0
		)
		WHERE email IN (
			SELECT DISTINCT from_email FROM email_observations
			WHERE is_inbound = 1 AND replied = 1 AND reply_time_mins IS NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to update response times: %w", err)
	}
	return nil
}

// Insight joins a contact's aggregates with recent activity windows.
func (s *ContactStore) Insight(email string, now time.Time) (*core.ContactInsight, error) {
	contact, err := s.Get(email)
	if err != nil {
		return nil, err
	}

	insight := &core.ContactInsight{Contact: *contact}
	weekAgo := DaysAgo(now, 7)

	err = s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM email_observations
		WHERE (from_email = ?
		       OR EXISTS (SELECT 1 FROM json_each(to_emails) WHERE LOWER(json_each.value) = ?))
		  AND timestamp >= ?
	`, contact.Email, contact.Email, weekAgo).Scan(&insight.RecentEmails)
	if err != nil {
		return nil, err
	}

	err = s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM calendar_observations ce
		WHERE ce.start_time >= ?
		  AND EXISTS (SELECT 1 FROM json_each(ce.attendees) WHERE LOWER(json_each.value) = ?)
	`, weekAgo, contact.Email).Scan(&insight.RecentMeetings)
	if err != nil {
		return nil, err
	}

	err = s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM email_observations
		WHERE from_email = ? AND is_inbound = 1 AND replied = 0
	`, contact.Email).Scan(&insight.UnansweredCount)
	if err != nil {
		return nil, err
	}

	return insight, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*core.Contact, error) {
	var c core.Contact
	var name, channel, tags sql.NullString
	var firstSeen, lastSeen string
	var avgReply sql.NullFloat64

	err := row.Scan(&c.Email, &name, &firstSeen, &lastSeen,
		&c.InteractionCount, &avgReply, &channel, &tags)
	if err != nil {
		return nil, err
	}

	c.Name = name.String
	c.PreferredChannel = core.Channel(channel.String)
	if avgReply.Valid {
		v := avgReply.Float64
		c.AvgReplyMins = &v
	}
	if c.FirstSeen, err = ParseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("bad first_seen: %w", err)
	}
	if c.LastSeen, err = ParseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("bad last_seen: %w", err)
	}
	c.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &c.Tags); err != nil {
			return nil, fmt.Errorf("bad tags: %w", err)
		}
	}
	return &c, nil
}
