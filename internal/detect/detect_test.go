package detect

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/storage"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testManager(t *testing.T) (*Manager, *storage.DB) {
	t.Helper()
	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return NewManager(db), db
}

func truePtr() *bool { v := true; return &v }

// seedInbound stores one unreplied inbound message.
func seedInbound(t *testing.T, db *storage.DB, thread, msg, from string, ts time.Time) {
	t.Helper()
	emails := storage.NewEmailStore(db)
	_, err := emails.Insert(core.EmailObservation{
		ThreadID: thread, MessageID: msg, FromEmail: from,
		Timestamp: ts, IsInbound: truePtr(), ObservedAt: testNow,
	})
	if err != nil {
		t.Fatalf("seed email %s: %v", msg, err)
	}
}

// seedMeeting stores one event with the given attendees.
func seedMeeting(t *testing.T, db *storage.DB, id string, start time.Time, attendees ...string) {
	t.Helper()
	events := storage.NewEventStore(db)
	err := events.Upsert(core.CalendarEvent{
		EventID: id, Summary: "Meeting", Start: start, End: start.Add(time.Hour),
		Attendees: attendees, ObservedAt: testNow,
	})
	if err != nil {
		t.Fatalf("seed event %s: %v", id, err)
	}
}

// =============================================================================
// Reachout Detection
// =============================================================================

func TestDetectReachouts(t *testing.T) {
	m, db := testManager(t)

	// Two unreplied inbound in the window triggers; one does not.
	seedInbound(t, db, "t1", "m1", "eager@example.com", testNow.AddDate(0, 0, -2))
	seedInbound(t, db, "t2", "m2", "eager@example.com", testNow.AddDate(0, 0, -4))
	seedInbound(t, db, "t3", "m3", "casual@example.com", testNow.AddDate(0, 0, -2))
	// Outside the 7-day window, never counted.
	seedInbound(t, db, "t4", "m4", "eager@example.com", testNow.AddDate(0, 0, -20))

	found, err := m.DetectReachouts(testNow)
	if err != nil {
		t.Fatalf("DetectReachouts() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d suggestions, want 1", len(found))
	}

	sg := found[0]
	if sg.Type != core.SuggestReachout {
		t.Errorf("type = %v, want reachout", sg.Type)
	}
	if sg.ContactEmail != "eager@example.com" {
		t.Errorf("contact = %q, want eager@example.com", sg.ContactEmail)
	}
	if sg.Confidence != 0.85 {
		t.Errorf("confidence = %f, want 0.85", sg.Confidence)
	}
	if sg.ExpiresAt == nil || !sg.ExpiresAt.Equal(testNow.AddDate(0, 0, 3)) {
		t.Errorf("expires_at = %v, want now+3d", sg.ExpiresAt)
	}
}

func TestDetectReachouts_PendingSuppressesRedetection(t *testing.T) {
	m, db := testManager(t)

	seedInbound(t, db, "t1", "m1", "eager@example.com", testNow.AddDate(0, 0, -2))
	seedInbound(t, db, "t2", "m2", "eager@example.com", testNow.AddDate(0, 0, -4))

	found, err := m.DetectReachouts(testNow)
	if err != nil {
		t.Fatalf("DetectReachouts() error = %v", err)
	}
	if _, err := storage.NewSuggestionStore(db).Insert(found[0]); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	again, err := m.DetectReachouts(testNow)
	if err != nil {
		t.Fatalf("second DetectReachouts() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("re-detection found %d, want 0 while pending", len(again))
	}
}

// =============================================================================
// Unanswered Thread Detection
// =============================================================================

func TestDetectUnansweredThreads(t *testing.T) {
	m, db := testManager(t)

	emails := storage.NewEmailStore(db)
	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "ada@example.com", Subject: "Budget review",
		Timestamp: testNow.AddDate(0, 0, -3), IsInbound: truePtr(), ObservedAt: testNow,
	})
	// Too fresh; people get a day before nagging starts.
	seedInbound(t, db, "t2", "m2", "recent@example.com", testNow.Add(-6*time.Hour))
	// Too stale for a reply nudge.
	seedInbound(t, db, "t3", "m3", "old@example.com", testNow.AddDate(0, 0, -10))

	found, err := m.DetectUnansweredThreads(testNow)
	if err != nil {
		t.Fatalf("DetectUnansweredThreads() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d suggestions, want 1", len(found))
	}
	if found[0].ContactEmail != "ada@example.com" {
		t.Errorf("contact = %q, want ada@example.com", found[0].ContactEmail)
	}
	if found[0].Confidence != 0.7 {
		t.Errorf("confidence = %f, want 0.7", found[0].Confidence)
	}
	if found[0].Title != `Reply to ada@example.com about "Budget review"` {
		t.Errorf("title = %q", found[0].Title)
	}
}

func TestDetectUnansweredThreads_NoSubject(t *testing.T) {
	m, db := testManager(t)

	seedInbound(t, db, "t1", "m1", "ada@example.com", testNow.AddDate(0, 0, -3))

	found, err := m.DetectUnansweredThreads(testNow)
	if err != nil {
		t.Fatalf("DetectUnansweredThreads() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d suggestions, want 1", len(found))
	}
	if found[0].Title != `Reply to ada@example.com about "(no subject)"` {
		t.Errorf("title = %q, want the placeholder subject", found[0].Title)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 40, "short"},
		{"exactly-five!", 13, "exactly-five!"},
		{"abcdefghij", 4, "abcd"},
		{"héllo wörld", 6, "héllo "},
		{"予定の確認をお願いします", 5, "予定の確認"},
		{"", 3, ""},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}

// =============================================================================
// Quiet Contact Detection
// =============================================================================

func TestDetectQuietContacts(t *testing.T) {
	m, db := testManager(t)
	contacts := storage.NewContactStore(db)

	// Went quiet a week ago with enough history.
	for i := 0; i < 4; i++ {
		contacts.Touch("quiet@example.com", "Quinn", core.ChannelEmail, testNow.AddDate(0, 0, -7))
	}
	// Not enough history.
	contacts.Touch("thin@example.com", "", core.ChannelEmail, testNow.AddDate(0, 0, -7))
	// Still active.
	for i := 0; i < 4; i++ {
		contacts.Touch("active@example.com", "", core.ChannelEmail, testNow.AddDate(0, 0, -1))
	}
	// Gone too long for a catch-up nudge.
	for i := 0; i < 4; i++ {
		contacts.Touch("gone@example.com", "", core.ChannelEmail, testNow.AddDate(0, 0, -30))
	}

	found, err := m.DetectQuietContacts(testNow)
	if err != nil {
		t.Fatalf("DetectQuietContacts() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d suggestions, want 1", len(found))
	}

	sg := found[0]
	if sg.ContactEmail != "quiet@example.com" {
		t.Errorf("contact = %q, want quiet@example.com", sg.ContactEmail)
	}
	if sg.Title != "Catch up with Quinn" {
		t.Errorf("title = %q", sg.Title)
	}
	// Confidence scales with history: 4 interactions / 20.
	if sg.Confidence != 0.2 {
		t.Errorf("confidence = %f, want 0.2", sg.Confidence)
	}
}

func TestDetectQuietContacts_ConfidenceCapped(t *testing.T) {
	m, db := testManager(t)
	contacts := storage.NewContactStore(db)

	for i := 0; i < 40; i++ {
		contacts.Touch("vip@example.com", "", core.ChannelEmail, testNow.AddDate(0, 0, -7))
	}

	found, err := m.DetectQuietContacts(testNow)
	if err != nil {
		t.Fatalf("DetectQuietContacts() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d suggestions, want 1", len(found))
	}
	if found[0].Confidence != 0.9 {
		t.Errorf("confidence = %f, want capped at 0.9", found[0].Confidence)
	}
}

// =============================================================================
// Meeting Lapse Detection
// =============================================================================

func TestDetectMeetingLapses(t *testing.T) {
	m, db := testManager(t)

	// Three meetings with pat in the lapse window, nothing since.
	seedMeeting(t, db, "e1", testNow.AddDate(0, 0, -28), "pat@example.com")
	seedMeeting(t, db, "e2", testNow.AddDate(0, 0, -24), "pat@example.com")
	seedMeeting(t, db, "e3", testNow.AddDate(0, 0, -18), "pat@example.com")

	// Sam had the same cadence but has something on the calendar.
	seedMeeting(t, db, "e4", testNow.AddDate(0, 0, -28), "sam@example.com")
	seedMeeting(t, db, "e5", testNow.AddDate(0, 0, -24), "sam@example.com")
	seedMeeting(t, db, "e6", testNow.AddDate(0, 0, -18), "sam@example.com")
	seedMeeting(t, db, "e7", testNow.AddDate(0, 0, 2), "sam@example.com")

	// Only two meetings, below the bar.
	seedMeeting(t, db, "e8", testNow.AddDate(0, 0, -28), "rare@example.com")
	seedMeeting(t, db, "e9", testNow.AddDate(0, 0, -24), "rare@example.com")

	found, err := m.DetectMeetingLapses(testNow)
	if err != nil {
		t.Fatalf("DetectMeetingLapses() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d suggestions, want 1", len(found))
	}
	if found[0].ContactEmail != "pat@example.com" {
		t.Errorf("contact = %q, want pat@example.com", found[0].ContactEmail)
	}
	if found[0].Type != core.SuggestScheduleMeeting {
		t.Errorf("type = %v, want schedule_meeting", found[0].Type)
	}
	if found[0].Confidence != 0.6 {
		t.Errorf("confidence = %f, want 0.6", found[0].Confidence)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestGenerate_ObserveLevelGatesInsertion(t *testing.T) {
	m, db := testManager(t)

	seedInbound(t, db, "t1", "m1", "eager@example.com", testNow.AddDate(0, 0, -2))
	seedInbound(t, db, "t2", "m2", "eager@example.com", testNow.AddDate(0, 0, -4))

	// Outreach ships at observe level, so the candidate is detected but
	// never surfaced.
	inserted, warnings := m.Generate(testNow)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0 at observe level", inserted)
	}

	autonomy := storage.NewAutonomyStore(db)
	if err := autonomy.SetLevel(core.ActivityOutreach, core.LevelSuggest, testNow); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}

	inserted, warnings = m.Generate(testNow)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1 after promotion to suggest", inserted)
	}

	// A third run dedupes against the now-pending suggestion.
	inserted, _ = m.Generate(testNow)
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0 on repeat run", inserted)
	}
}

func TestGenerate_QuietContactSurfacesByDefault(t *testing.T) {
	m, db := testManager(t)
	contacts := storage.NewContactStore(db)

	// follow_up is seeded at suggest, so catch-up nudges flow without setup.
	for i := 0; i < 4; i++ {
		contacts.Touch("quiet@example.com", "", core.ChannelEmail, testNow.AddDate(0, 0, -7))
	}

	inserted, warnings := m.Generate(testNow)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}

	pending, err := storage.NewSuggestionStore(db).Pending(testNow, 10)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Type != core.SuggestCatchUp {
		t.Errorf("pending = %+v, want one catch_up", pending)
	}
}

func TestGenerate_SweepsExpiryAndGC(t *testing.T) {
	m, db := testManager(t)
	suggestions := storage.NewSuggestionStore(db)

	past := testNow.Add(-time.Hour)
	overdueID, err := suggestions.Insert(core.Suggestion{
		Type: core.SuggestCatchUp, Title: "Stale", Description: "d",
		ContactEmail: "stale@example.com", Confidence: 0.5,
		CreatedAt: testNow.AddDate(0, 0, -8), ExpiresAt: &past,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	ancientID, err := suggestions.Insert(core.Suggestion{
		Type: core.SuggestCatchUp, Title: "Ancient", Description: "d",
		ContactEmail: "ancient@example.com", Confidence: 0.5,
		CreatedAt: testNow.AddDate(0, 0, -60),
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := suggestions.Resolve(ancientID, core.StatusDismissed, testNow.AddDate(0, 0, -40)); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	_, warnings := m.Generate(testNow)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}

	expired, err := suggestions.Get(overdueID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if expired.Status != core.StatusExpired {
		t.Errorf("overdue status = %v, want expired", expired.Status)
	}

	if _, err := suggestions.Get(ancientID); err == nil {
		t.Error("ancient dismissed suggestion should have been purged")
	}
}
