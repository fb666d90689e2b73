package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/attune-hq/attune/internal/core"
)

// SuggestionStore manages the suggestion lifecycle.
type SuggestionStore struct {
	db *DB
}

// NewSuggestionStore creates a suggestion store
func NewSuggestionStore(db *DB) *SuggestionStore {
	return &SuggestionStore{db: db}
}

// Insert stores a new pending suggestion and returns its id.
func (s *SuggestionStore) Insert(sg core.Suggestion) (int64, error) {
	var contact sql.NullString
	if sg.ContactEmail != "" {
		contact = sql.NullString{String: sg.ContactEmail, Valid: true}
	}
	var expires sql.NullString
	if sg.ExpiresAt != nil {
		expires = sql.NullString{String: FormatTime(*sg.ExpiresAt), Valid: true}
	}

	res, err := s.db.conn.Exec(`
		INSERT INTO suggestions (type, title, description, contact_email, confidence, context, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)
	`, string(sg.Type), sg.Title, sg.Description, contact, sg.Confidence,
		sg.Context, FormatTime(sg.CreatedAt), expires)
	if err != nil {
		return 0, fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return res.LastInsertId()
}

// Get retrieves a suggestion by id
func (s *SuggestionStore) Get(id int64) (*core.Suggestion, error) {
	row := s.db.conn.QueryRow(`
		SELECT id, type, title, description, contact_email, confidence,
		       context, status, created_at, acted_at, expires_at
		FROM suggestions WHERE id = ?
	`, id)

	sg, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sg, nil
}

// Pending lists open, non-expired suggestions, highest confidence first.
// Overdue rows are excluded here even before the expiry sweep flips them.
func (s *SuggestionStore) Pending(now time.Time, limit int) ([]core.Suggestion, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, type, title, description, contact_email, confidence,
		       context, status, created_at, acted_at, expires_at
		FROM suggestions
		WHERE status = 'pending' AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY confidence DESC, created_at DESC
		LIMIT ?
	`, FormatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []core.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sg)
	}
	return result, rows.Err()
}

// HasPending reports whether an open suggestion of this type already targets
// this contact. Contactless suggestions dedupe on the empty string.
func (s *SuggestionStore) HasPending(t core.SuggestionType, contactEmail string) (bool, error) {
	var n int
	err := s.db.conn.QueryRow(`
		SELECT COUNT(*) FROM suggestions
		WHERE type = ? AND status = 'pending' AND COALESCE(contact_email, '') = ?
	`, string(t), contactEmail).Scan(&n)
	return n > 0, err
}

// CountPending returns the number of open suggestions
func (s *SuggestionStore) CountPending() (int, error) {
	var n int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM suggestions WHERE status = 'pending'").Scan(&n)
	return n, err
}

// Resolve transitions a pending suggestion to a resolved status and stamps
// acted_at. Resolving an already resolved suggestion is an error.
func (s *SuggestionStore) Resolve(id int64, status core.SuggestionStatus, now time.Time) (*core.Suggestion, error) {
	sg, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if sg.Status != core.StatusPending {
		return nil, fmt.Errorf("%w: suggestion %d is %s", core.ErrSuggestionResolved, id, sg.Status)
	}

	actedAt := now.UTC().Truncate(time.Second)
	_, err = s.db.conn.Exec(`
		UPDATE suggestions SET status = ?, acted_at = ? WHERE id = ? AND status = 'pending'
	`, string(status), FormatTime(actedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve suggestion: %w", err)
	}

	sg.Status = status
	sg.ActedAt = &actedAt
	return sg, nil
}

// ExpirePending marks overdue pending suggestions as expired and returns
// how many were swept.
func (s *SuggestionStore) ExpirePending(now time.Time) (int64, error) {
	res, err := s.db.conn.Exec(`
		UPDATE suggestions SET status = 'expired', acted_at = ?
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < ?
	`, FormatTime(now), FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire suggestions: %w", err)
	}
	return res.RowsAffected()
}

// PurgeTerminal deletes resolved suggestions whose acted_at is older than
// 30 days. Accepted suggestions are kept as history.
func (s *SuggestionStore) PurgeTerminal(now time.Time) (int64, error) {
	res, err := s.db.conn.Exec(`
		DELETE FROM suggestions
		WHERE status IN ('dismissed', 'expired', 'executed')
		  AND acted_at IS NOT NULL AND acted_at < ?
	`, DaysAgo(now, 30))
	if err != nil {
		return 0, fmt.Errorf("failed to purge suggestions: %w", err)
	}
	return res.RowsAffected()
}

func scanSuggestion(row rowScanner) (*core.Suggestion, error) {
	var sg core.Suggestion
	var typ, status, createdAt string
	var contact, context, actedAt, expiresAt sql.NullString

	err := row.Scan(&sg.ID, &typ, &sg.Title, &sg.Description, &contact,
		&sg.Confidence, &context, &status, &createdAt, &actedAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	sg.Type = core.SuggestionType(typ)
	sg.Status = core.SuggestionStatus(status)
	sg.ContactEmail = contact.String
	sg.Context = context.String
	if sg.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if sg.ActedAt, err = scanTime(actedAt); err != nil {
		return nil, err
	}
	if sg.ExpiresAt, err = scanTime(expiresAt); err != nil {
		return nil, err
	}
	return &sg, nil
}
