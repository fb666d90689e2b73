package googlefeed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/attune-hq/attune/internal/config"
	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/observe"
)

// Feed queries the Google APIs directly and maps responses onto the same
// payload shapes the CLI feed produces, so the normalizer stays identical.
type Feed struct {
	calendarSvc *calendar.Service
	gmailSvc    *gmail.Service
	lookback    int
	lookahead   int
	maxEmails   int
}

// New creates an API-backed feed from a stored token.
func New(ctx context.Context, cfg config.FeedConfig, oauth *OAuthClient, token *oauth2.Token) (*Feed, error) {
	if token == nil || !token.Valid() && token.RefreshToken == "" {
		return nil, core.ErrNotAuthorized
	}

	client := oauth.httpClient(ctx, token)
	calendarSvc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	gmailSvc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Feed{
		calendarSvc: calendarSvc,
		gmailSvc:    gmailSvc,
		lookback:    cfg.CalendarLookbackDays,
		lookahead:   cfg.CalendarLookaheadDays,
		maxEmails:   cfg.EmailMaxResults,
	}, nil
}

// FetchEvents pulls the primary calendar for the rolling window.
func (f *Feed) FetchEvents(ctx context.Context) ([]observe.Event, error) {
	now := time.Now()
	resp, err := f.calendarSvc.Events.List("primary").
		Context(ctx).
		TimeMin(now.AddDate(0, 0, -f.lookback).Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, f.lookahead).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(200).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: calendar list: %v", core.ErrFeedUnavailable, err)
	}

	events := make([]observe.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, convertEvent(item))
	}
	return events, nil
}

// FetchThreads pulls threads active in the last 24 hours with metadata-only
// message detail.
func (f *Feed) FetchThreads(ctx context.Context) ([]observe.Thread, error) {
	listing, err := f.gmailSvc.Users.Threads.List("me").
		Context(ctx).
		Q("newer_than:24h").
		MaxResults(int64(f.maxEmails)).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: gmail search: %v", core.ErrFeedUnavailable, err)
	}

	threads := make([]observe.Thread, 0, len(listing.Threads))
	for _, stub := range listing.Threads {
		full, err := f.gmailSvc.Users.Threads.Get("me", stub.Id).
			Context(ctx).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject").
			Do()
		if err != nil {
			return nil, fmt.Errorf("%w: gmail thread %s: %v", core.ErrFeedUnavailable, stub.Id, err)
		}
		threads = append(threads, convertThread(full))
	}
	return threads, nil
}

// SelfEmail resolves the authorized account's address.
func (f *Feed) SelfEmail(ctx context.Context) (string, error) {
	profile, err := f.gmailSvc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: gmail profile: %v", core.ErrFeedUnavailable, err)
	}
	return profile.EmailAddress, nil
}

func convertEvent(item *calendar.Event) observe.Event {
	ev := observe.Event{
		ID:         item.Id,
		Summary:    item.Summary,
		Location:   item.Location,
		Recurrence: item.Recurrence,
	}
	if item.Start != nil {
		ev.Start = &observe.EventTime{DateTime: item.Start.DateTime, Date: item.Start.Date}
	}
	if item.End != nil {
		ev.End = &observe.EventTime{DateTime: item.End.DateTime, Date: item.End.Date}
	}
	if item.Organizer != nil {
		ev.Organizer = &observe.Organizer{Email: item.Organizer.Email}
	}
	for _, att := range item.Attendees {
		ev.Attendees = append(ev.Attendees, observe.Attendee{
			Email:       att.Email,
			DisplayName: att.DisplayName,
		})
	}
	return ev
}

func convertThread(t *gmail.Thread) observe.Thread {
	thread := observe.Thread{ID: t.Id}
	for _, msg := range t.Messages {
		converted := observe.Message{
			ID:           msg.Id,
			ThreadID:     msg.ThreadId,
			LabelIDs:     msg.LabelIds,
			InternalDate: fmt.Sprint(msg.InternalDate),
		}
		if msg.Payload != nil {
			payload := &observe.MessagePayload{}
			for _, h := range msg.Payload.Headers {
				payload.Headers = append(payload.Headers, observe.Header{Name: h.Name, Value: h.Value})
			}
			converted.Payload = payload
		}
		thread.Messages = append(thread.Messages, converted)
	}
	return thread
}
