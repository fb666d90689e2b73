package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/attune-hq/attune/internal/core"
)

// AutonomyStore manages per-activity trust levels.
type AutonomyStore struct {
	db *DB
}

// NewAutonomyStore creates an autonomy store
func NewAutonomyStore(db *DB) *AutonomyStore {
	return &AutonomyStore{db: db}
}

// All returns every autonomy setting, seeded rows included.
func (s *AutonomyStore) All() ([]core.AutonomySetting, error) {
	rows, err := s.db.conn.Query(`
		SELECT activity_type, level, promoted_at, total_accepted, total_dismissed
		FROM autonomy_settings ORDER BY activity_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []core.AutonomySetting
	for rows.Next() {
		st, err := scanAutonomy(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *st)
	}
	return settings, rows.Err()
}

// Get retrieves one activity's setting
func (s *AutonomyStore) Get(activity core.ActivityType) (*core.AutonomySetting, error) {
	row := s.db.conn.QueryRow(`
		SELECT activity_type, level, promoted_at, total_accepted, total_dismissed
		FROM autonomy_settings WHERE activity_type = ?
	`, string(activity))

	st, err := scanAutonomy(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Level returns the trust level for an activity. Unseeded activities fall
// back to suggest so a missing row never silences the engine.
func (s *AutonomyStore) Level(activity core.ActivityType) core.Level {
	var level string
	err := s.db.conn.QueryRow(`
		SELECT level FROM autonomy_settings WHERE activity_type = ?
	`, string(activity)).Scan(&level)
	if err != nil {
		return core.LevelSuggest
	}
	if parsed, perr := core.ParseLevel(level); perr == nil {
		return parsed
	}
	return core.LevelSuggest
}

// SetLevel stores a level for an activity, creating the row if needed.
func (s *AutonomyStore) SetLevel(activity core.ActivityType, level core.Level, now time.Time) error {
	_, err := s.db.conn.Exec(`
		INSERT INTO autonomy_settings (activity_type, level, promoted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(activity_type) DO UPDATE SET
			level = excluded.level,
			promoted_at = excluded.promoted_at
	`, string(activity), string(level), FormatTime(now))
	if err != nil {
		return fmt.Errorf("failed to set autonomy level: %w", err)
	}
	return nil
}

// RecordAccepted increments the acceptance counter for an activity
func (s *AutonomyStore) RecordAccepted(activity core.ActivityType) error {
	_, err := s.db.conn.Exec(`
		UPDATE autonomy_settings SET total_accepted = total_accepted + 1
		WHERE activity_type = ?
	`, string(activity))
	return err
}

// RecordDismissed increments the dismissal counter for an activity
func (s *AutonomyStore) RecordDismissed(activity core.ActivityType) error {
	_, err := s.db.conn.Exec(`
		UPDATE autonomy_settings SET total_dismissed = total_dismissed + 1
		WHERE activity_type = ?
	`, string(activity))
	return err
}

// Eligible returns activities that currently qualify for promotion.
func (s *AutonomyStore) Eligible() ([]core.AutonomySetting, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var eligible []core.AutonomySetting
	for _, st := range all {
		if st.Eligible() {
			eligible = append(eligible, st)
		}
	}
	return eligible, nil
}

// Promote advances an eligible activity one level. Promotion never skips
// levels and never happens without this explicit call.
func (s *AutonomyStore) Promote(activity core.ActivityType, now time.Time) (*core.AutonomySetting, error) {
	st, err := s.Get(activity)
	if err != nil {
		return nil, err
	}
	if !st.Eligible() {
		return nil, fmt.Errorf("%w: %s", core.ErrNotEligible, activity)
	}

	next, ok := st.Level.Next()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotEligible, activity)
	}
	if err := s.SetLevel(activity, next, now); err != nil {
		return nil, err
	}
	return s.Get(activity)
}

// ResetCounters zeroes accept/dismiss history for every activity while
// preserving earned levels. Used by the full data wipe.
func (s *AutonomyStore) ResetCounters() error {
	_, err := s.db.conn.Exec(`
		UPDATE autonomy_settings SET total_accepted = 0, total_dismissed = 0
	`)
	return err
}

func scanAutonomy(row rowScanner) (*core.AutonomySetting, error) {
	var st core.AutonomySetting
	var activity, level string
	var promotedAt sql.NullString

	err := row.Scan(&activity, &level, &promotedAt, &st.TotalAccepted, &st.TotalDismissed)
	if err != nil {
		return nil, err
	}

	st.ActivityType = core.ActivityType(activity)
	st.Level = core.Level(level)
	if st.PromotedAt, err = scanTime(promotedAt); err != nil {
		return nil, err
	}
	return &st, nil
}
