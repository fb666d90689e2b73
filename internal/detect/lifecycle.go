package detect

import (
	"fmt"
	"time"

	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/logging"
)

// Generate runs every detector, gates candidates by autonomy level, inserts
// survivors, then sweeps expiry and garbage-collects old terminal rows.
// Detector and sweep failures degrade to warnings; only an insert failure
// for a surviving candidate is fatal. Returns the number of new rows.
func (m *Manager) Generate(now time.Time) (int, []error) {
	var warnings []error
	var candidates []core.Suggestion

	detectors := []struct {
		name string
		run  func(time.Time) ([]core.Suggestion, error)
	}{
		{"reachout", m.DetectReachouts},
		{"respond", m.DetectUnansweredThreads},
		{"catch_up", m.DetectQuietContacts},
		{"schedule_meeting", m.DetectMeetingLapses},
	}

	for _, d := range detectors {
		found, err := d.run(now)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("detector %s: %w", d.name, err))
			continue
		}
		candidates = append(candidates, found...)
	}

	inserted := 0
	for _, candidate := range candidates {
		level := m.autonomy.Level(core.ActivityFor(candidate.Type))
		if level == core.LevelObserve {
			continue
		}

		exists, err := m.suggestions.HasPending(candidate.Type, candidate.ContactEmail)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("dedup check: %w", err))
			continue
		}
		if exists {
			continue
		}

		if _, err := m.suggestions.Insert(candidate); err != nil {
			return inserted, append(warnings, err)
		}
		inserted++
	}

	if swept, err := m.suggestions.ExpirePending(now); err != nil {
		warnings = append(warnings, fmt.Errorf("expiry sweep: %w", err))
	} else if swept > 0 {
		logging.Debug("Expired %d stale suggestions", swept)
	}

	if purged, err := m.suggestions.PurgeTerminal(now); err != nil {
		warnings = append(warnings, fmt.Errorf("gc: %w", err))
	} else if purged > 0 {
		logging.Debug("Purged %d old suggestions", purged)
	}

	return inserted, warnings
}
