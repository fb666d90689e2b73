// Package core defines the fundamental types for Attune.
// These types are the DNA of the entire system.
package core

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// SUGGESTION - A time-boxed recommendation produced by a detector
// -----------------------------------------------------------------------------

// SuggestionType identifies which detector produced a suggestion.
type SuggestionType string

const (
	SuggestReachout        SuggestionType = "reachout"
	SuggestRespond         SuggestionType = "respond"
	SuggestCatchUp         SuggestionType = "catch_up"
	SuggestScheduleMeeting SuggestionType = "schedule_meeting"
)

// SuggestionStatus is the lifecycle state of a suggestion.
type SuggestionStatus string

const (
	StatusPending   SuggestionStatus = "pending"
	StatusAccepted  SuggestionStatus = "accepted"
	StatusDismissed SuggestionStatus = "dismissed"
	StatusExpired   SuggestionStatus = "expired"
	StatusExecuted  SuggestionStatus = "executed"
)

// Terminal reports whether a status can no longer transition.
func (s SuggestionStatus) Terminal() bool {
	switch s {
	case StatusDismissed, StatusExpired, StatusExecuted:
		return true
	}
	return false
}

// Suggestion is a proposed, user-facing recommendation.
// At most one pending suggestion exists per (type, contact) pair.
type Suggestion struct {
	ID           int64            `json:"id"`
	Type         SuggestionType   `json:"type"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	ContactEmail string           `json:"contact_email,omitempty"`
	Confidence   float64          `json:"confidence"`
	Context      string           `json:"context,omitempty"` // JSON blob of detector evidence
	Status       SuggestionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	ActedAt      *time.Time       `json:"acted_at,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
}

// -----------------------------------------------------------------------------
// AUTONOMY - Per-activity trust tier, earned over time
// -----------------------------------------------------------------------------

// Level is the autonomy tier for an activity type. Levels only move forward,
// one step per explicit user approval.
type Level string

const (
	LevelObserve Level = "observe"
	LevelSuggest Level = "suggest"
	LevelDraft   Level = "draft"
	LevelAct     Level = "act"
)

// ParseLevel validates an externally supplied level string.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelObserve, LevelSuggest, LevelDraft, LevelAct:
		return Level(s), nil
	}
	return "", fmt.Errorf("%w: %q (use observe, suggest, draft, or act)", ErrInvalidLevel, s)
}

// Next returns the level above the current one, or false at the top.
func (l Level) Next() (Level, bool) {
	switch l {
	case LevelObserve:
		return LevelSuggest, true
	case LevelSuggest:
		return LevelDraft, true
	case LevelDraft:
		return LevelAct, true
	}
	return "", false
}

// ActivityType groups suggestions for autonomy gating.
type ActivityType string

const (
	ActivityScheduling ActivityType = "scheduling"
	ActivityEmailReply ActivityType = "email_reply"
	ActivityFollowUp   ActivityType = "follow_up"
	ActivityOutreach   ActivityType = "outreach"
)

// ParseActivityType validates an externally supplied activity type string.
func ParseActivityType(s string) (ActivityType, error) {
	switch ActivityType(s) {
	case ActivityScheduling, ActivityEmailReply, ActivityFollowUp, ActivityOutreach:
		return ActivityType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActivity, s)
}

// ActivityFor maps a suggestion type to the activity type that gates it.
func ActivityFor(t SuggestionType) ActivityType {
	switch t {
	case SuggestReachout:
		return ActivityOutreach
	case SuggestRespond:
		return ActivityEmailReply
	case SuggestCatchUp:
		return ActivityFollowUp
	case SuggestScheduleMeeting:
		return ActivityScheduling
	}
	return ActivityFollowUp
}

// AutonomySetting tracks the trust level and accept/dismiss history for one
// activity type. Counters only reset on a full data wipe.
type AutonomySetting struct {
	ActivityType   ActivityType `json:"activity_type"`
	Level          Level        `json:"level"`
	PromotedAt     *time.Time   `json:"promoted_at,omitempty"`
	TotalAccepted  int64        `json:"total_accepted"`
	TotalDismissed int64        `json:"total_dismissed"`
}

// PromotionThreshold is the accepted count required before an activity
// becomes eligible for promotion (with zero dismissals).
const PromotionThreshold = 10

// Eligible reports whether this setting qualifies for promotion.
func (a AutonomySetting) Eligible() bool {
	return a.TotalAccepted >= PromotionThreshold &&
		a.TotalDismissed == 0 &&
		a.Level != LevelAct
}

// -----------------------------------------------------------------------------
// CONTACT - The behavioral model, keyed by lowercase email address
// -----------------------------------------------------------------------------

// Channel is the interaction source recorded on a contact touch.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelCalendar Channel = "calendar"
)

// Contact is the merged behavioral summary for one participant identity.
type Contact struct {
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	InteractionCount int64     `json:"interaction_count"`
	AvgReplyMins     *float64  `json:"avg_response_time_mins,omitempty"`
	PreferredChannel Channel   `json:"preferred_channel,omitempty"`
	Tags             []string  `json:"tags"`
}

// ContactInsight joins a contact's aggregates with recent-window activity.
type ContactInsight struct {
	Contact
	RecentEmails    int64 `json:"recent_emails"`
	RecentMeetings  int64 `json:"recent_meetings"`
	UnansweredCount int64 `json:"unanswered_count"`
}

// -----------------------------------------------------------------------------
// OBSERVATIONS - Metadata-only records of calendar and email activity
// -----------------------------------------------------------------------------

// CalendarEvent is one observed event, upserted idempotently by source id.
type CalendarEvent struct {
	EventID        string    `json:"event_id"`
	Summary        string    `json:"summary,omitempty"`
	Start          time.Time `json:"start_time"`
	End            time.Time `json:"end_time"`
	Attendees      []string  `json:"attendees"`
	Location       string    `json:"location,omitempty"`
	IsRecurring    bool      `json:"is_recurring"`
	OrganizerEmail string    `json:"organizer_email,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

// EmailObservation is one observed message's metadata. Never the body.
// Only the replied flag and reply latency are mutable after insert.
type EmailObservation struct {
	ThreadID   string    `json:"thread_id"`
	MessageID  string    `json:"message_id"`
	FromEmail  string    `json:"from_email"`
	ToEmails   []string  `json:"to_emails"`
	Subject    string    `json:"subject,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IsInbound  *bool     `json:"is_inbound,omitempty"`
	Replied    bool      `json:"replied"`
	ReplyMins  *float64  `json:"reply_time_mins,omitempty"`
	Labels     []string  `json:"labels"`
	ObservedAt time.Time `json:"observed_at"`
}

// UnansweredEmail is one inbound message still awaiting a reply, joined
// against the sender's contact record.
type UnansweredEmail struct {
	FromEmail        string    `json:"from_email"`
	Subject          string    `json:"subject,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ThreadID         string    `json:"thread_id"`
	ContactName      string    `json:"contact_name,omitempty"`
	InteractionCount int64     `json:"interaction_count"`
}

// ActivityStats is the aggregate dashboard view.
type ActivityStats struct {
	ContactsTracked    int        `json:"contacts_tracked"`
	EmailsObserved24h  int        `json:"emails_observed_24h"`
	CalendarEvents7d   int        `json:"calendar_events_7d"`
	PendingSuggestions int        `json:"suggestions_pending"`
	TopContacts        []Contact  `json:"top_contacts"`
	LastObservation    *time.Time `json:"last_observation,omitempty"`
}
