package storage

import (
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/attune-hq/attune/internal/core"
)

// testDB creates an in-memory database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// testNow is a fixed reference time so window math is deterministic.
var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func truePtr() *bool  { v := true; return &v }
func falsePtr() *bool { v := false; return &v }

// =============================================================================
// DB Tests
// =============================================================================

func TestDB_Open_InMemory(t *testing.T) {
	db, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.conn == nil {
		t.Error("db.conn should not be nil")
	}
	if !db.isMemory {
		t.Error("db.isMemory should be true for in-memory database")
	}
}

func TestDB_Open_File(t *testing.T) {
	tmpDir := t.TempDir()
	path := tmpDir + "/test.db"

	db, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.isMemory {
		t.Error("db.isMemory should be false for file database")
	}
	if db.path != path {
		t.Errorf("db.path = %v, want %v", db.path, path)
	}
}

func TestDB_Transaction_Rollback(t *testing.T) {
	db := testDB(t)

	err := db.Transaction(func(tx *sql.Tx) error {
		tx.Exec("INSERT INTO contacts (email, first_seen, last_seen) VALUES (?, ?, ?)",
			"rollback@example.com", FormatTime(testNow), FormatTime(testNow))
		return sql.ErrNoRows
	})
	if err == nil {
		t.Error("Transaction() should return error when function returns error")
	}

	var count int
	db.conn.QueryRow("SELECT COUNT(*) FROM contacts").Scan(&count)
	if count != 0 {
		t.Error("Transaction should have rolled back the insert")
	}
}

func TestDB_ClearAllData(t *testing.T) {
	db := testDB(t)
	contacts := NewContactStore(db)
	autonomy := NewAutonomyStore(db)

	if err := contacts.Touch("a@example.com", "A", core.ChannelEmail, testNow); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := autonomy.SetLevel(core.ActivityOutreach, core.LevelDraft, testNow); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		autonomy.RecordAccepted(core.ActivityOutreach)
	}

	if err := db.ClearAllData(); err != nil {
		t.Fatalf("ClearAllData() error = %v", err)
	}

	n, err := contacts.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("contacts after wipe = %d, want 0", n)
	}

	// Earned levels survive, counters do not.
	st, err := autonomy.Get(core.ActivityOutreach)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if st.Level != core.LevelDraft {
		t.Errorf("level after wipe = %v, want draft", st.Level)
	}
	if st.TotalAccepted != 0 {
		t.Errorf("total_accepted after wipe = %d, want 0", st.TotalAccepted)
	}
	if st.PromotedAt == nil || !st.PromotedAt.Equal(testNow) {
		t.Errorf("promoted_at after wipe = %v, want %v preserved", st.PromotedAt, testNow)
	}
}

// =============================================================================
// Time Helper Tests
// =============================================================================

func TestFormatTime_ParseTime_RoundTrip(t *testing.T) {
	got, err := ParseTime(FormatTime(testNow))
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !got.Equal(testNow) {
		t.Errorf("round trip = %v, want %v", got, testNow)
	}
}

func TestDayBoundary_SortsBeforeSameDayTimestamps(t *testing.T) {
	boundary := DayBoundary(testNow)
	midnight := FormatTime(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if boundary >= midnight {
		t.Errorf("day boundary %q should sort before %q", boundary, midnight)
	}
}

func TestDaysAgo_DaysAhead(t *testing.T) {
	if got := DaysAgo(testNow, 7); got != "2026-03-08" {
		t.Errorf("DaysAgo(7) = %q, want 2026-03-08", got)
	}
	if got := DaysAhead(testNow, 3); got != "2026-03-18" {
		t.Errorf("DaysAhead(3) = %q, want 2026-03-18", got)
	}
}

// =============================================================================
// ContactStore Tests
// =============================================================================

func TestContactStore_Touch_CreatesContact(t *testing.T) {
	db := testDB(t)
	store := NewContactStore(db)

	if err := store.Touch("Alice@Example.com ", "Alice", core.ChannelEmail, testNow); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	c, err := store.Get("alice@example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized lowercase", c.Email)
	}
	if c.Name != "Alice" {
		t.Errorf("name = %q, want Alice", c.Name)
	}
	if c.InteractionCount != 1 {
		t.Errorf("interaction_count = %d, want 1", c.InteractionCount)
	}
	if c.PreferredChannel != core.ChannelEmail {
		t.Errorf("preferred_channel = %v, want email", c.PreferredChannel)
	}
}

func TestContactStore_Touch_MergesOnConflict(t *testing.T) {
	db := testDB(t)
	store := NewContactStore(db)

	first := testNow
	later := testNow.Add(48 * time.Hour)

	store.Touch("bob@example.com", "Bob", core.ChannelEmail, first)
	// A later touch without a display name must not erase the known one.
	store.Touch("bob@example.com", "", core.ChannelCalendar, later)

	c, err := store.Get("bob@example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Name != "Bob" {
		t.Errorf("name = %q, want Bob preserved", c.Name)
	}
	if c.InteractionCount != 2 {
		t.Errorf("interaction_count = %d, want 2", c.InteractionCount)
	}
	if !c.FirstSeen.Equal(first) {
		t.Errorf("first_seen = %v, want original %v", c.FirstSeen, first)
	}
	if !c.LastSeen.Equal(later) {
		t.Errorf("last_seen = %v, want %v", c.LastSeen, later)
	}
}

func TestContactStore_Touch_ChannelFollowsEarlyThenFreezes(t *testing.T) {
	db := testDB(t)
	store := NewContactStore(db)

	// Early touches still move the preferred channel.
	store.Touch("carol@example.com", "Carol", core.ChannelEmail, testNow)
	store.Touch("carol@example.com", "Carol", core.ChannelCalendar, testNow)

	c, _ := store.Get("carol@example.com")
	if c.PreferredChannel != core.ChannelCalendar {
		t.Errorf("preferred_channel = %v, want calendar while count is low", c.PreferredChannel)
	}

	// Push past the freeze point on email, then try to flip back.
	for i := 0; i < 6; i++ {
		store.Touch("carol@example.com", "Carol", core.ChannelEmail, testNow)
	}
	store.Touch("carol@example.com", "Carol", core.ChannelCalendar, testNow)

	c, _ = store.Get("carol@example.com")
	if c.PreferredChannel != core.ChannelEmail {
		t.Errorf("preferred_channel = %v, want email frozen after many interactions", c.PreferredChannel)
	}
	if c.InteractionCount != 9 {
		t.Errorf("interaction_count = %d, want 9", c.InteractionCount)
	}
}

func TestContactStore_Touch_EmptyEmail(t *testing.T) {
	db := testDB(t)
	store := NewContactStore(db)

	err := store.Touch("  ", "Nobody", core.ChannelEmail, testNow)
	if !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("Touch() error = %v, want ErrMissingRequired", err)
	}
}

func TestContactStore_Get_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewContactStore(db)

	_, err := store.Get("ghost@example.com")
	if !errors.Is(err, core.ErrRecordNotFound) {
		t.Errorf("Get() error = %v, want ErrRecordNotFound", err)
	}
}

func TestContactStore_Top_Ordering(t *testing.T) {
	db := testDB(t)
	store := NewContactStore(db)

	for i := 0; i < 3; i++ {
		store.Touch("busy@example.com", "", core.ChannelEmail, testNow)
	}
	store.Touch("quiet@example.com", "", core.ChannelEmail, testNow)

	top, err := store.Top(10)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("Top() returned %d contacts, want 2", len(top))
	}
	if top[0].Email != "busy@example.com" {
		t.Errorf("top contact = %q, want busy@example.com", top[0].Email)
	}
}

func TestContactStore_Insight(t *testing.T) {
	db := testDB(t)
	contacts := NewContactStore(db)
	emails := NewEmailStore(db)
	events := NewEventStore(db)

	contacts.Touch("dave@example.com", "Dave", core.ChannelEmail, testNow)

	// Two recent inbound emails, one outbound reply to Dave, one too old.
	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "dave@example.com",
		Timestamp: testNow.Add(-24 * time.Hour), IsInbound: truePtr(), ObservedAt: testNow,
	})
	emails.Insert(core.EmailObservation{
		ThreadID: "t2", MessageID: "m2", FromEmail: "dave@example.com",
		Timestamp: testNow.Add(-48 * time.Hour), IsInbound: truePtr(), ObservedAt: testNow,
	})
	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m3", FromEmail: "me@example.com",
		ToEmails:  []string{"dave@example.com"},
		Timestamp: testNow.Add(-23 * time.Hour), IsInbound: falsePtr(), ObservedAt: testNow,
	})
	emails.Insert(core.EmailObservation{
		ThreadID: "t3", MessageID: "m4", FromEmail: "dave@example.com",
		Timestamp: testNow.Add(-9 * 24 * time.Hour), IsInbound: truePtr(), ObservedAt: testNow,
	})
	if err := emails.DetectReplyPatterns(); err != nil {
		t.Fatalf("DetectReplyPatterns() error = %v", err)
	}

	events.Upsert(core.CalendarEvent{
		EventID: "e1", Summary: "Sync",
		Start:      testNow.Add(-3 * 24 * time.Hour),
		End:        testNow.Add(-3*24*time.Hour + time.Hour),
		Attendees:  []string{"Dave@example.com", "me@example.com"},
		ObservedAt: testNow,
	})
	// Outside the trailing week.
	events.Upsert(core.CalendarEvent{
		EventID: "e2", Summary: "Old sync",
		Start:      testNow.Add(-10 * 24 * time.Hour),
		End:        testNow.Add(-10*24*time.Hour + time.Hour),
		Attendees:  []string{"dave@example.com"},
		ObservedAt: testNow,
	})

	insight, err := contacts.Insight("dave@example.com", testNow)
	if err != nil {
		t.Fatalf("Insight() error = %v", err)
	}
	// m1 and m2 from Dave, m3 to Dave; m4 predates the window.
	if insight.RecentEmails != 3 {
		t.Errorf("recent emails = %d, want 3", insight.RecentEmails)
	}
	if insight.RecentMeetings != 1 {
		t.Errorf("recent meetings = %d, want 1", insight.RecentMeetings)
	}
	// m2 and m4 never got a reply; the unanswered count has no window.
	if insight.UnansweredCount != 2 {
		t.Errorf("unanswered = %d, want 2", insight.UnansweredCount)
	}
}

func TestContactStore_UpdateAvgResponseTimes(t *testing.T) {
	db := testDB(t)
	contacts := NewContactStore(db)
	emails := NewEmailStore(db)

	contacts.Touch("erin@example.com", "Erin", core.ChannelEmail, testNow)

	// Inbound at t0, reply at t0+30m and another exchange at t0+90m reply.
	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "erin@example.com",
		Timestamp: testNow, IsInbound: truePtr(), ObservedAt: testNow,
	})
	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m2", FromEmail: "me@example.com",
		Timestamp: testNow.Add(30 * time.Minute), IsInbound: falsePtr(), ObservedAt: testNow,
	})
	emails.Insert(core.EmailObservation{
		ThreadID: "t2", MessageID: "m3", FromEmail: "erin@example.com",
		Timestamp: testNow, IsInbound: truePtr(), ObservedAt: testNow,
	})
	emails.Insert(core.EmailObservation{
		ThreadID: "t2", MessageID: "m4", FromEmail: "me@example.com",
		Timestamp: testNow.Add(90 * time.Minute), IsInbound: falsePtr(), ObservedAt: testNow,
	})

	if err := emails.DetectReplyPatterns(); err != nil {
		t.Fatalf("DetectReplyPatterns() error = %v", err)
	}
	if err := contacts.UpdateAvgResponseTimes(); err != nil {
		t.Fatalf("UpdateAvgResponseTimes() error = %v", err)
	}

	c, err := contacts.Get("erin@example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.AvgReplyMins == nil {
		t.Fatal("avg_response_time_mins should be set")
	}
	if math.Abs(*c.AvgReplyMins-60) > 0.01 {
		t.Errorf("avg reply = %f, want 60", *c.AvgReplyMins)
	}
}

// =============================================================================
// EventStore Tests
// =============================================================================

func TestEventStore_Upsert_Get(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)

	ev := core.CalendarEvent{
		EventID:        "evt-1",
		Summary:        "Planning",
		Start:          testNow,
		End:            testNow.Add(time.Hour),
		Attendees:      []string{"a@example.com", "b@example.com"},
		Location:       "Room 4",
		IsRecurring:    true,
		OrganizerEmail: "a@example.com",
		ObservedAt:     testNow,
	}
	if err := store.Upsert(ev); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.Get("evt-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Summary != "Planning" || !got.IsRecurring || len(got.Attendees) != 2 {
		t.Errorf("Get() = %+v, fields not round-tripped", got)
	}
}

func TestEventStore_Upsert_ReplacesOnConflict(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)

	ev := core.CalendarEvent{
		EventID: "evt-2", Summary: "Original",
		Start: testNow, End: testNow.Add(time.Hour), ObservedAt: testNow,
	}
	store.Upsert(ev)

	ev.Summary = "Rescheduled"
	ev.Start = testNow.Add(24 * time.Hour)
	ev.End = testNow.Add(25 * time.Hour)
	if err := store.Upsert(ev); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, _ := store.Get("evt-2")
	if got.Summary != "Rescheduled" {
		t.Errorf("summary = %q, want Rescheduled", got.Summary)
	}
	if !got.Start.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("start = %v, want moved forward a day", got.Start)
	}

	var count int
	db.conn.QueryRow("SELECT COUNT(*) FROM calendar_observations").Scan(&count)
	if count != 1 {
		t.Errorf("event rows = %d, want 1", count)
	}
}

func TestEventStore_Upsert_EmptyID(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)

	err := store.Upsert(core.CalendarEvent{Summary: "No id"})
	if !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("Upsert() error = %v, want ErrMissingRequired", err)
	}
}

func TestEventStore_CountStartingSince(t *testing.T) {
	db := testDB(t)
	store := NewEventStore(db)

	store.Upsert(core.CalendarEvent{
		EventID: "recent", Start: testNow.Add(-2 * 24 * time.Hour),
		End: testNow.Add(-2 * 24 * time.Hour), ObservedAt: testNow,
	})
	store.Upsert(core.CalendarEvent{
		EventID: "old", Start: testNow.Add(-20 * 24 * time.Hour),
		End: testNow.Add(-20 * 24 * time.Hour), ObservedAt: testNow,
	})

	n, err := store.CountStartingSince(testNow, 7)
	if err != nil {
		t.Fatalf("CountStartingSince() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountStartingSince(7) = %d, want 1", n)
	}
}

// =============================================================================
// EmailStore Tests
// =============================================================================

func TestEmailStore_Insert_DuplicateIgnored(t *testing.T) {
	db := testDB(t)
	store := NewEmailStore(db)

	obs := core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "a@example.com",
		Timestamp: testNow, ObservedAt: testNow,
	}

	inserted, err := store.Insert(obs)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !inserted {
		t.Error("first Insert() should report inserted")
	}

	inserted, err = store.Insert(obs)
	if err != nil {
		t.Fatalf("duplicate Insert() error = %v", err)
	}
	if inserted {
		t.Error("duplicate Insert() should report not inserted")
	}
}

func TestEmailStore_Insert_EmptyMessageID(t *testing.T) {
	db := testDB(t)
	store := NewEmailStore(db)

	_, err := store.Insert(core.EmailObservation{ThreadID: "t1"})
	if !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("Insert() error = %v, want ErrMissingRequired", err)
	}
}

func TestEmailStore_DetectReplyPatterns(t *testing.T) {
	db := testDB(t)
	store := NewEmailStore(db)

	// Inbound at t0, outbound replies at t0+45m and t0+3h in the same thread.
	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "in-1", FromEmail: "a@example.com",
		Timestamp: testNow, IsInbound: truePtr(), ObservedAt: testNow,
	})
	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "out-1", FromEmail: "me@example.com",
		Timestamp: testNow.Add(45 * time.Minute), IsInbound: falsePtr(), ObservedAt: testNow,
	})
	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "out-2", FromEmail: "me@example.com",
		Timestamp: testNow.Add(3 * time.Hour), IsInbound: falsePtr(), ObservedAt: testNow,
	})
	// An unrelated inbound thread with no reply.
	store.Insert(core.EmailObservation{
		ThreadID: "t2", MessageID: "in-2", FromEmail: "b@example.com",
		Timestamp: testNow, IsInbound: truePtr(), ObservedAt: testNow,
	})

	if err := store.DetectReplyPatterns(); err != nil {
		t.Fatalf("DetectReplyPatterns() error = %v", err)
	}

	replied, err := store.Get("in-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !replied.Replied {
		t.Error("in-1 should be marked replied")
	}
	if replied.ReplyMins == nil {
		t.Fatal("in-1 reply latency should be set")
	}
	// Latency is the earliest outbound gap, not the latest.
	if math.Abs(*replied.ReplyMins-45) > 0.01 {
		t.Errorf("reply latency = %f, want 45", *replied.ReplyMins)
	}

	unreplied, _ := store.Get("in-2")
	if unreplied.Replied {
		t.Error("in-2 should stay unreplied")
	}

	// A second pass must not recompute or change anything.
	if err := store.DetectReplyPatterns(); err != nil {
		t.Fatalf("second DetectReplyPatterns() error = %v", err)
	}
	again, _ := store.Get("in-1")
	if math.Abs(*again.ReplyMins-45) > 0.01 {
		t.Errorf("latency changed on second pass: %f", *again.ReplyMins)
	}
}

func TestEmailStore_DetectReplyPatterns_EarlierOutboundIgnored(t *testing.T) {
	db := testDB(t)
	store := NewEmailStore(db)

	// Outbound at t0-10m precedes the inbound at t0 in the same thread.
	// Only outbound messages strictly later than the inbound count.
	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "out-early", FromEmail: "me@example.com",
		Timestamp: testNow.Add(-10 * time.Minute), IsInbound: falsePtr(), ObservedAt: testNow,
	})
	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "in-1", FromEmail: "a@example.com",
		Timestamp: testNow, IsInbound: truePtr(), ObservedAt: testNow,
	})

	if err := store.DetectReplyPatterns(); err != nil {
		t.Fatalf("DetectReplyPatterns() error = %v", err)
	}

	inbound, err := store.Get("in-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if inbound.Replied {
		t.Error("in-1 marked replied by an outbound that predates it")
	}
	if inbound.ReplyMins != nil {
		t.Errorf("reply latency = %f, want unset", *inbound.ReplyMins)
	}

	// A later reply still wins, and the gap measures from the inbound.
	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "out-late", FromEmail: "me@example.com",
		Timestamp: testNow.Add(30 * time.Minute), IsInbound: falsePtr(), ObservedAt: testNow,
	})
	if err := store.DetectReplyPatterns(); err != nil {
		t.Fatalf("second DetectReplyPatterns() error = %v", err)
	}

	inbound, _ = store.Get("in-1")
	if !inbound.Replied {
		t.Fatal("in-1 should be replied once a later outbound exists")
	}
	if math.Abs(*inbound.ReplyMins-30) > 0.01 {
		t.Errorf("reply latency = %f, want 30", *inbound.ReplyMins)
	}
}

func TestEmailStore_Unanswered(t *testing.T) {
	db := testDB(t)
	emails := NewEmailStore(db)
	contacts := NewContactStore(db)

	contacts.Touch("a@example.com", "Ada", core.ChannelEmail, testNow)

	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "a@example.com", Subject: "Question",
		Timestamp: testNow.Add(-2 * 24 * time.Hour), IsInbound: truePtr(), ObservedAt: testNow,
	})
	// Too old for the window.
	emails.Insert(core.EmailObservation{
		ThreadID: "t2", MessageID: "m2", FromEmail: "a@example.com",
		Timestamp: testNow.Add(-10 * 24 * time.Hour), IsInbound: truePtr(), ObservedAt: testNow,
	})
	// Outbound, never listed.
	emails.Insert(core.EmailObservation{
		ThreadID: "t3", MessageID: "m3", FromEmail: "me@example.com",
		Timestamp: testNow.Add(-1 * 24 * time.Hour), IsInbound: falsePtr(), ObservedAt: testNow,
	})

	result, err := emails.Unanswered(testNow, 20)
	if err != nil {
		t.Fatalf("Unanswered() error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Unanswered() returned %d, want 1", len(result))
	}
	if result[0].ContactName != "Ada" {
		t.Errorf("contact name = %q, want Ada from the join", result[0].ContactName)
	}
	if result[0].Subject != "Question" {
		t.Errorf("subject = %q, want Question", result[0].Subject)
	}
}

func TestEmailStore_MostFrequentSentSender(t *testing.T) {
	db := testDB(t)
	store := NewEmailStore(db)

	addr, err := store.MostFrequentSentSender()
	if err != nil {
		t.Fatalf("MostFrequentSentSender() error = %v", err)
	}
	if addr != "" {
		t.Errorf("empty store sender = %q, want empty", addr)
	}

	store.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "me@example.com",
		Timestamp: testNow, Labels: []string{"SENT"}, ObservedAt: testNow,
	})
	store.Insert(core.EmailObservation{
		ThreadID: "t2", MessageID: "m2", FromEmail: "me@example.com",
		Timestamp: testNow, Labels: []string{"SENT"}, ObservedAt: testNow,
	})
	store.Insert(core.EmailObservation{
		ThreadID: "t3", MessageID: "m3", FromEmail: "other@example.com",
		Timestamp: testNow, Labels: []string{"SENT"}, ObservedAt: testNow,
	})

	addr, err = store.MostFrequentSentSender()
	if err != nil {
		t.Fatalf("MostFrequentSentSender() error = %v", err)
	}
	if addr != "me@example.com" {
		t.Errorf("sender = %q, want me@example.com", addr)
	}
}

func TestEmailStore_LastObservation(t *testing.T) {
	db := testDB(t)
	emails := NewEmailStore(db)
	events := NewEventStore(db)

	last, err := emails.LastObservation()
	if err != nil {
		t.Fatalf("LastObservation() error = %v", err)
	}
	if last != nil {
		t.Errorf("empty store last observation = %v, want nil", last)
	}

	emails.Insert(core.EmailObservation{
		ThreadID: "t1", MessageID: "m1", FromEmail: "a@example.com",
		Timestamp: testNow, ObservedAt: testNow.Add(-time.Hour),
	})
	events.Upsert(core.CalendarEvent{
		EventID: "e1", Start: testNow, End: testNow, ObservedAt: testNow,
	})

	last, err = emails.LastObservation()
	if err != nil {
		t.Fatalf("LastObservation() error = %v", err)
	}
	if last == nil || !last.Equal(testNow) {
		t.Errorf("last observation = %v, want %v from the calendar side", last, testNow)
	}
}

// =============================================================================
// SuggestionStore Tests
// =============================================================================

func testSuggestion(contact string) core.Suggestion {
	exp := testNow.Add(3 * 24 * time.Hour)
	return core.Suggestion{
		Type:         core.SuggestReachout,
		Title:        "Reach out",
		Description:  "Someone is waiting",
		ContactEmail: contact,
		Confidence:   0.85,
		CreatedAt:    testNow,
		ExpiresAt:    &exp,
	}
}

func TestSuggestionStore_Insert_Get(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	id, err := store.Insert(testSuggestion("a@example.com"))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	sg, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sg.Status != core.StatusPending {
		t.Errorf("status = %v, want pending", sg.Status)
	}
	if sg.ContactEmail != "a@example.com" {
		t.Errorf("contact = %q, want a@example.com", sg.ContactEmail)
	}
	if sg.ExpiresAt == nil {
		t.Error("expires_at should be set")
	}
}

func TestSuggestionStore_Get_NotFound(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	_, err := store.Get(9999)
	if !errors.Is(err, core.ErrSuggestionNotFound) {
		t.Errorf("Get() error = %v, want ErrSuggestionNotFound", err)
	}
}

func TestSuggestionStore_Pending_OrderedByConfidence(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	low := testSuggestion("low@example.com")
	low.Confidence = 0.6
	high := testSuggestion("high@example.com")
	high.Confidence = 0.9

	store.Insert(low)
	store.Insert(high)

	pending, err := store.Pending(testNow, 10)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Pending() returned %d, want 2", len(pending))
	}
	if pending[0].ContactEmail != "high@example.com" {
		t.Errorf("first pending = %q, want highest confidence first", pending[0].ContactEmail)
	}
}

func TestSuggestionStore_Pending_ExcludesOverdue(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	fresh := testSuggestion("fresh@example.com")
	overdue := testSuggestion("overdue@example.com")
	past := testNow.Add(-2 * time.Hour)
	overdue.ExpiresAt = &past
	open := testSuggestion("open@example.com")
	open.ExpiresAt = nil

	store.Insert(fresh)
	overdueID, _ := store.Insert(overdue)
	store.Insert(open)

	pending, err := store.Pending(testNow, 10)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Pending() returned %d, want 2 (overdue row excluded before any sweep)", len(pending))
	}
	for _, sg := range pending {
		if sg.ContactEmail == "overdue@example.com" {
			t.Error("Pending() served a suggestion past its expires_at")
		}
	}

	// The overdue row is still in the table for the sweep to flip.
	sg, err := store.Get(overdueID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sg.Status != core.StatusPending {
		t.Errorf("status = %v, want pending until the sweep runs", sg.Status)
	}
}

func TestSuggestionStore_HasPending(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	store.Insert(testSuggestion("a@example.com"))

	has, err := store.HasPending(core.SuggestReachout, "a@example.com")
	if err != nil {
		t.Fatalf("HasPending() error = %v", err)
	}
	if !has {
		t.Error("HasPending() = false, want true for same type and contact")
	}

	has, _ = store.HasPending(core.SuggestCatchUp, "a@example.com")
	if has {
		t.Error("HasPending() = true for a different type, want false")
	}
	has, _ = store.HasPending(core.SuggestReachout, "b@example.com")
	if has {
		t.Error("HasPending() = true for a different contact, want false")
	}
}

func TestSuggestionStore_Resolve(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	id, _ := store.Insert(testSuggestion("a@example.com"))

	sg, err := store.Resolve(id, core.StatusAccepted, testNow)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if sg.Status != core.StatusAccepted {
		t.Errorf("status = %v, want accepted", sg.Status)
	}
	if sg.ActedAt == nil || !sg.ActedAt.Equal(testNow) {
		t.Errorf("acted_at = %v, want %v", sg.ActedAt, testNow)
	}

	// Resolving again must fail, the decision already happened.
	_, err = store.Resolve(id, core.StatusDismissed, testNow)
	if !errors.Is(err, core.ErrSuggestionResolved) {
		t.Errorf("second Resolve() error = %v, want ErrSuggestionResolved", err)
	}
}

func TestSuggestionStore_ExpirePending(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	overdue := testSuggestion("overdue@example.com")
	past := testNow.Add(-time.Hour)
	overdue.ExpiresAt = &past
	overdueID, _ := store.Insert(overdue)

	fresh := testSuggestion("fresh@example.com")
	freshID, _ := store.Insert(fresh)

	swept, err := store.ExpirePending(testNow)
	if err != nil {
		t.Fatalf("ExpirePending() error = %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	expired, _ := store.Get(overdueID)
	if expired.Status != core.StatusExpired {
		t.Errorf("overdue status = %v, want expired", expired.Status)
	}
	if expired.ActedAt == nil {
		t.Error("expired suggestion should get acted_at for later purging")
	}

	kept, _ := store.Get(freshID)
	if kept.Status != core.StatusPending {
		t.Errorf("fresh status = %v, want still pending", kept.Status)
	}
}

func TestSuggestionStore_PurgeTerminal(t *testing.T) {
	db := testDB(t)
	store := NewSuggestionStore(db)

	oldID, _ := store.Insert(testSuggestion("old@example.com"))
	store.Resolve(oldID, core.StatusDismissed, testNow.AddDate(0, 0, -31))

	recentID, _ := store.Insert(testSuggestion("recent@example.com"))
	store.Resolve(recentID, core.StatusDismissed, testNow.AddDate(0, 0, -29))

	acceptedID, _ := store.Insert(testSuggestion("kept@example.com"))
	store.Resolve(acceptedID, core.StatusAccepted, testNow.AddDate(0, 0, -31))

	purged, err := store.PurgeTerminal(testNow)
	if err != nil {
		t.Fatalf("PurgeTerminal() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want only the old dismissal", purged)
	}

	if _, err := store.Get(oldID); !errors.Is(err, core.ErrSuggestionNotFound) {
		t.Error("old dismissed suggestion should be gone")
	}
	if _, err := store.Get(recentID); err != nil {
		t.Errorf("recent dismissed suggestion should survive: %v", err)
	}
	if _, err := store.Get(acceptedID); err != nil {
		t.Errorf("accepted suggestion is history and should survive: %v", err)
	}
}

// =============================================================================
// AutonomyStore Tests
// =============================================================================

func TestAutonomyStore_Seeds(t *testing.T) {
	db := testDB(t)
	store := NewAutonomyStore(db)

	all, err := store.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("All() returned %d settings, want 4 seeds", len(all))
	}

	want := map[core.ActivityType]core.Level{
		core.ActivityScheduling: core.LevelSuggest,
		core.ActivityEmailReply: core.LevelObserve,
		core.ActivityFollowUp:   core.LevelSuggest,
		core.ActivityOutreach:   core.LevelObserve,
	}
	for _, st := range all {
		if st.Level != want[st.ActivityType] {
			t.Errorf("%s seeded at %v, want %v", st.ActivityType, st.Level, want[st.ActivityType])
		}
	}
}

func TestAutonomyStore_Level_FallsBackToSuggest(t *testing.T) {
	db := testDB(t)
	store := NewAutonomyStore(db)

	if got := store.Level(core.ActivityType("unknown")); got != core.LevelSuggest {
		t.Errorf("Level(unknown) = %v, want suggest fallback", got)
	}
}

func TestAutonomyStore_Promote(t *testing.T) {
	db := testDB(t)
	store := NewAutonomyStore(db)

	// Not eligible until the threshold is reached.
	for i := 0; i < core.PromotionThreshold-1; i++ {
		store.RecordAccepted(core.ActivityOutreach)
	}
	_, err := store.Promote(core.ActivityOutreach, testNow)
	if !errors.Is(err, core.ErrNotEligible) {
		t.Errorf("Promote() at 9 accepts error = %v, want ErrNotEligible", err)
	}

	store.RecordAccepted(core.ActivityOutreach)
	st, err := store.Promote(core.ActivityOutreach, testNow)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if st.Level != core.LevelSuggest {
		t.Errorf("level after promotion = %v, want suggest", st.Level)
	}
	if st.PromotedAt == nil {
		t.Error("promoted_at should be stamped")
	}
}

func TestAutonomyStore_Promote_DismissalBlocks(t *testing.T) {
	db := testDB(t)
	store := NewAutonomyStore(db)

	for i := 0; i < core.PromotionThreshold; i++ {
		store.RecordAccepted(core.ActivityOutreach)
	}
	store.RecordDismissed(core.ActivityOutreach)

	_, err := store.Promote(core.ActivityOutreach, testNow)
	if !errors.Is(err, core.ErrNotEligible) {
		t.Errorf("Promote() with a dismissal error = %v, want ErrNotEligible", err)
	}
}

func TestAutonomyStore_Promote_CapsAtAct(t *testing.T) {
	db := testDB(t)
	store := NewAutonomyStore(db)

	store.SetLevel(core.ActivityOutreach, core.LevelAct, testNow)
	for i := 0; i < core.PromotionThreshold; i++ {
		store.RecordAccepted(core.ActivityOutreach)
	}

	_, err := store.Promote(core.ActivityOutreach, testNow)
	if !errors.Is(err, core.ErrNotEligible) {
		t.Errorf("Promote() at act error = %v, want ErrNotEligible", err)
	}
}

func TestAutonomyStore_Eligible(t *testing.T) {
	db := testDB(t)
	store := NewAutonomyStore(db)

	for i := 0; i < core.PromotionThreshold; i++ {
		store.RecordAccepted(core.ActivityEmailReply)
	}

	eligible, err := store.Eligible()
	if err != nil {
		t.Fatalf("Eligible() error = %v", err)
	}
	if len(eligible) != 1 || eligible[0].ActivityType != core.ActivityEmailReply {
		t.Errorf("Eligible() = %+v, want only email_reply", eligible)
	}
}
