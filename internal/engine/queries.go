package engine

import (
	"time"

	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/logging"
	"github.com/attune-hq/attune/internal/storage"
)

// PendingSuggestions returns the open suggestion list for rendering,
// strongest first, capped at 20.
func (e *Engine) PendingSuggestions() ([]core.Suggestion, error) {
	return e.suggestions.Pending(storage.NowUTC(), 20)
}

// AcceptSuggestion marks a pending suggestion accepted and credits the
// activity's trust counter. A counter failure never blocks the transition.
func (e *Engine) AcceptSuggestion(id int64) (*core.Suggestion, error) {
	sg, err := e.suggestions.Resolve(id, core.StatusAccepted, storage.NowUTC())
	if err != nil {
		return nil, err
	}
	if err := e.autonomy.RecordAccepted(core.ActivityFor(sg.Type)); err != nil {
		logging.Warn("Accept counter update failed for %s: %v", sg.Type, err)
	}
	return sg, nil
}

// DismissSuggestion marks a pending suggestion dismissed and records the
// dismissal against the activity's trust counters.
func (e *Engine) DismissSuggestion(id int64) (*core.Suggestion, error) {
	sg, err := e.suggestions.Resolve(id, core.StatusDismissed, storage.NowUTC())
	if err != nil {
		return nil, err
	}
	if err := e.autonomy.RecordDismissed(core.ActivityFor(sg.Type)); err != nil {
		logging.Warn("Dismiss counter update failed for %s: %v", sg.Type, err)
	}
	return sg, nil
}

// TopContacts returns the most interacted-with contacts
func (e *Engine) TopContacts(limit int) ([]core.Contact, error) {
	return e.contacts.Top(limit)
}

// ContactInsight returns one contact's model joined with recent activity
func (e *Engine) ContactInsight(email string) (*core.ContactInsight, error) {
	return e.contacts.Insight(email, storage.NowUTC())
}

// UnansweredEmails lists recent inbound messages still awaiting a reply
func (e *Engine) UnansweredEmails(limit int) ([]core.UnansweredEmail, error) {
	return e.emails.Unanswered(storage.NowUTC(), limit)
}

// Stats assembles the aggregate dashboard view.
func (e *Engine) Stats() (*core.ActivityStats, error) {
	now := storage.NowUTC()
	stats := &core.ActivityStats{}

	var err error
	if stats.ContactsTracked, err = e.contacts.Count(); err != nil {
		return nil, err
	}
	if stats.EmailsObserved24h, err = e.emails.CountObservedSince(now.Add(-24 * time.Hour)); err != nil {
		return nil, err
	}
	if stats.CalendarEvents7d, err = e.events.CountStartingSince(now, 7); err != nil {
		return nil, err
	}
	if stats.PendingSuggestions, err = e.suggestions.CountPending(); err != nil {
		return nil, err
	}
	if stats.TopContacts, err = e.contacts.Top(5); err != nil {
		return nil, err
	}
	if stats.TopContacts == nil {
		stats.TopContacts = []core.Contact{}
	}
	if stats.LastObservation, err = e.emails.LastObservation(); err != nil {
		return nil, err
	}
	return stats, nil
}

// AutonomySettings returns every activity's trust state
func (e *Engine) AutonomySettings() ([]core.AutonomySetting, error) {
	return e.autonomy.All()
}

// SetAutonomyLevel sets an activity's level directly
func (e *Engine) SetAutonomyLevel(activity core.ActivityType, level core.Level) error {
	return e.autonomy.SetLevel(activity, level, storage.NowUTC())
}

// PromotionEligible lists activities that qualify for promotion
func (e *Engine) PromotionEligible() ([]core.AutonomySetting, error) {
	return e.autonomy.Eligible()
}

// Promote advances an eligible activity one level
func (e *Engine) Promote(activity core.ActivityType) (*core.AutonomySetting, error) {
	return e.autonomy.Promote(activity, storage.NowUTC())
}

// ClearAllData wipes observations, contacts, and suggestions while
// preserving autonomy levels.
func (e *Engine) ClearAllData() error {
	logging.Warn("Clearing all intelligence data")
	return e.db.ClearAllData()
}
