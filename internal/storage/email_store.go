package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attune-hq/attune/internal/core"
)

// EmailStore manages email metadata observations.
type EmailStore struct {
	db *DB
}

// NewEmailStore creates an email store
func NewEmailStore(db *DB) *EmailStore {
	return &EmailStore{db: db}
}

// Insert records one message observation. Duplicate message ids are ignored
// and reported as not inserted, so overlapping observation windows are safe.
func (s *EmailStore) Insert(obs core.EmailObservation) (bool, error) {
	if obs.MessageID == "" {
		return false, fmt.Errorf("%w: message id", core.ErrMissingRequired)
	}

	toEmails, err := json.Marshal(obs.ToEmails)
	if err != nil {
		return false, fmt.Errorf("failed to marshal recipients: %w", err)
	}
	labels, err := json.Marshal(obs.Labels)
	if err != nil {
		return false, fmt.Errorf("failed to marshal labels: %w", err)
	}

	var inbound sql.NullInt64
	if obs.IsInbound != nil {
		inbound = sql.NullInt64{Int64: int64(boolInt(*obs.IsInbound)), Valid: true}
	}

	res, err := s.db.conn.Exec(`
		INSERT OR IGNORE INTO email_observations
			(thread_id, message_id, from_email, to_emails, subject, timestamp, is_inbound, labels, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, obs.ThreadID, obs.MessageID, obs.FromEmail, string(toEmails), obs.Subject,
		FormatTime(obs.Timestamp), inbound, string(labels), FormatTime(obs.ObservedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert email observation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get retrieves one observation by message id
func (s *EmailStore) Get(messageID string) (*core.EmailObservation, error) {
	row := s.db.conn.QueryRow(`
		SELECT thread_id, message_id, from_email, to_emails, subject,
		       timestamp, is_inbound, replied, reply_time_mins, labels, observed_at
		FROM email_observations WHERE message_id = ?
	`, messageID)

	obs, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// DetectReplyPatterns marks inbound messages as replied when a later outbound
// message exists in the same thread, then fixes each reply latency to the
// minimum later outbound gap. Both updates are idempotent.
func (s *EmailStore) DetectReplyPatterns() error {
	_, err := s.db.conn.Exec(`
		UPDATE email_observations SET replied = 1
		WHERE is_inbound = 1 AND replied = 0
		  AND EXISTS (
			SELECT 1 FROM email_observations e2
			WHERE e2.thread_id = email_observations.thread_id
			  AND e2.is_inbound = 0
			  AND e2.timestamp > email_observations.timestamp
		  )
	`)
	if err != nil {
		return fmt.Errorf("failed to mark replies: %w", err)
	}

	_, err = s.db.conn.Exec(`
		UPDATE email_observations SET reply_time_mins = (
			SELECT MIN((JULIANDAY(e2.timestamp) - JULIANDAY(email_observations.timestamp)) * 1440)
			FROM email_observations e2
			WHERE e2.thread_id = email_observations.thread_id
			  AND e2.is_inbound = 0
			  AND e2.timestamp > email_observations.timestamp
		)
		WHERE is_inbound = 1 AND replied = 1 AND reply_time_mins IS NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to compute reply latencies: %w", err)
	}
	return nil
}

// Unanswered lists inbound messages from the last 7 days still awaiting a
// reply, most recent first, joined against the sender's contact record.
func (s *EmailStore) Unanswered(now time.Time, limit int) ([]core.UnansweredEmail, error) {
	rows, err := s.db.conn.Query(`
		SELECT e.from_email, e.subject, e.timestamp, e.thread_id,
		       c.name, COALESCE(c.interaction_count, 0)
		FROM email_observations e
		LEFT JOIN contacts c ON c.email = e.from_email
		WHERE e.is_inbound = 1 AND e.replied = 0 AND e.timestamp > ?
		ORDER BY e.timestamp DESC
		LIMIT ?
	`, DaysAgo(now, 7), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []core.UnansweredEmail
	for rows.Next() {
		var u core.UnansweredEmail
		var subject, name sql.NullString
		var ts string
		if err := rows.Scan(&u.FromEmail, &subject, &ts, &u.ThreadID, &name, &u.InteractionCount); err != nil {
			return nil, err
		}
		u.Subject = subject.String
		u.ContactName = name.String
		if u.Timestamp, err = ParseTime(ts); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// CountObservedSince counts messages observed within the trailing window.
func (s *EmailStore) CountObservedSince(since time.Time) (int, error) {
	var n int
	err := s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM email_observations WHERE observed_at > ?
	`, FormatTime(since)).Scan(&n)
	return n, err
}

// MostFrequentSentSender infers the account's own address from sent mail.
// Returns the empty string when no sent messages have been observed.
func (s *EmailStore) MostFrequentSentSender() (string, error) {
	var addr string
	err := s.db.conn.QueryRow(`
		SELECT from_email FROM email_observations
		WHERE labels LIKE '%SENT%'
		GROUP BY from_email
		ORDER BY COUNT(*) DESC
		LIMIT 1
	`).Scan(&addr)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return addr, nil
}

// LastObservation returns the newest observed_at across email and calendar.
func (s *EmailStore) LastObservation() (*time.Time, error) {
	var ns sql.NullString
	err := s.db.conn.QueryRow(`
		SELECT MAX(observed_at) FROM (
			SELECT observed_at FROM email_observations
			UNION ALL
			SELECT observed_at FROM calendar_observations
		)
	`).Scan(&ns)
	if err != nil {
		return nil, err
	}
	return scanTime(ns)
}

func scanEmail(row rowScanner) (*core.EmailObservation, error) {
	var obs core.EmailObservation
	var subject sql.NullString
	var toEmails, labels string
	var ts, observed string
	var inbound sql.NullInt64
	var replied int
	var replyMins sql.NullFloat64

	err := row.Scan(&obs.ThreadID, &obs.MessageID, &obs.FromEmail, &toEmails,
		&subject, &ts, &inbound, &replied, &replyMins, &labels, &observed)
	if err != nil {
		return nil, err
	}

	obs.Subject = subject.String
	obs.Replied = replied != 0
	if inbound.Valid {
		v := inbound.Int64 != 0
		obs.IsInbound = &v
	}
	if replyMins.Valid {
		v := replyMins.Float64
		obs.ReplyMins = &v
	}
	obs.ToEmails = []string{}
	if toEmails != "" {
		if err := json.Unmarshal([]byte(toEmails), &obs.ToEmails); err != nil {
			return nil, fmt.Errorf("bad recipients: %w", err)
		}
	}
	obs.Labels = []string{}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &obs.Labels); err != nil {
			return nil, fmt.Errorf("bad labels: %w", err)
		}
	}
	if obs.Timestamp, err = ParseTime(ts); err != nil {
		return nil, err
	}
	if obs.ObservedAt, err = ParseTime(observed); err != nil {
		return nil, err
	}
	return &obs, nil
}
