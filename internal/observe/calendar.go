package observe

import (
	"context"
	"fmt"
	"time"

	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/logging"
	"github.com/attune-hq/attune/internal/storage"
)

// ObserveCalendar ingests one window of calendar events. Every event is
// upserted by source id and every participant feeds the contact model.
// Returns the number of events processed.
func (o *Observer) ObserveCalendar(ctx context.Context, src CalendarSource) (int, error) {
	events, err := src.FetchEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("calendar fetch: %w", err)
	}

	now := storage.NowUTC()
	count := 0

	for _, ev := range events {
		if ev.ID == "" {
			continue
		}

		attendees := make([]string, 0, len(ev.Attendees))
		for _, att := range ev.Attendees {
			if att.Email != "" {
				attendees = append(attendees, att.Email)
			}
		}

		var organizer string
		if ev.Organizer != nil {
			organizer = ev.Organizer.Email
		}

		record := core.CalendarEvent{
			EventID:        ev.ID,
			Summary:        ev.Summary,
			Start:          parseEventTime(ev.Start.Value()),
			End:            parseEventTime(ev.End.Value()),
			Attendees:      attendees,
			Location:       ev.Location,
			IsRecurring:    len(ev.Recurrence) > 0,
			OrganizerEmail: organizer,
			ObservedAt:     now,
		}

		if err := o.events.Upsert(record); err != nil {
			logging.Warn("Skipping calendar event %s: %v", ev.ID, err)
			continue
		}
		count++

		for _, att := range ev.Attendees {
			if att.Email == "" {
				continue
			}
			if err := o.contacts.Touch(att.Email, att.DisplayName, core.ChannelCalendar, now); err != nil {
				logging.Warn("Contact touch failed for %s: %v", att.Email, err)
			}
		}
		if organizer != "" {
			if err := o.contacts.Touch(organizer, "", core.ChannelCalendar, now); err != nil {
				logging.Warn("Contact touch failed for %s: %v", organizer, err)
			}
		}
	}

	return count, nil
}

// parseEventTime handles both precise instants and date-only values.
// Unparseable values map to the zero time, which sorts before every
// window boundary and so never pollutes recency queries.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
