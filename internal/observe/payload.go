// Package observe normalizes external calendar and email payloads into
// stored observations and contact touches. Message bodies never enter
// this package; only ids, headers, labels, and timestamps do.
package observe

import (
	"encoding/json"
	"fmt"

	"github.com/attune-hq/attune/internal/core"
)

// Wire shapes for the calendar feed. Fields mirror the Google Calendar
// event resource; everything is optional on the wire.

// EventTime is either a precise instant or a date-only value.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Value prefers the precise instant over the date-only form.
func (t *EventTime) Value() string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// Attendee is one event participant reference
type Attendee struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Organizer is the event organizer reference
type Organizer struct {
	Email string `json:"email,omitempty"`
}

// Event is one calendar item from the feed
type Event struct {
	ID         string     `json:"id,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Start      *EventTime `json:"start,omitempty"`
	End        *EventTime `json:"end,omitempty"`
	Attendees  []Attendee `json:"attendees,omitempty"`
	Location   string     `json:"location,omitempty"`
	Recurrence []string   `json:"recurrence,omitempty"`
	Organizer  *Organizer `json:"organizer,omitempty"`
}

type calendarWrapper struct {
	Items []Event `json:"items"`
}

// Wire shapes for the email feed. Fields mirror the Gmail thread and
// message resources, headers included, bodies excluded.

// Header is one name/value message header
type Header struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// MessagePayload carries the header list
type MessagePayload struct {
	Headers []Header `json:"headers,omitempty"`
}

// Message is one email message's metadata
type Message struct {
	ID           string          `json:"id,omitempty"`
	ThreadID     string          `json:"threadId,omitempty"`
	LabelIDs     []string        `json:"labelIds,omitempty"`
	InternalDate string          `json:"internalDate,omitempty"`
	Payload      *MessagePayload `json:"payload,omitempty"`
}

// Thread is one conversation with its messages
type Thread struct {
	ID       string    `json:"id,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

type emailWrapper struct {
	Threads []Thread `json:"threads"`
}

// DecodeCalendarPayload accepts either a wrapper object with items or a
// bare array. A payload that is neither is a feed-level error.
func DecodeCalendarPayload(data []byte) ([]Event, error) {
	var wrapper calendarWrapper
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Items != nil {
		return wrapper.Items, nil
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err == nil {
		return events, nil
	}
	return nil, fmt.Errorf("%w: calendar payload", core.ErrFeedPayload)
}

// DecodeEmailPayload accepts a wrapper object with threads or a bare array.
// Anything else decodes as an empty result, since the search feed returns
// an empty body when nothing matched.
func DecodeEmailPayload(data []byte) ([]Thread, error) {
	var wrapper emailWrapper
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Threads != nil {
		return wrapper.Threads, nil
	}
	var threads []Thread
	if err := json.Unmarshal(data, &threads); err == nil {
		return threads, nil
	}
	return nil, nil
}
