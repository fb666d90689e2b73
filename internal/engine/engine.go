// Package engine owns the behavioral-intelligence loop: periodic
// observation, pattern detection, the suggestion surface, and the
// autonomy state machine. It is an explicitly constructed object with
// start/stop lifecycle; nothing here is a process-wide singleton.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attune-hq/attune/internal/config"
	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/detect"
	"github.com/attune-hq/attune/internal/logging"
	"github.com/attune-hq/attune/internal/observe"
	"github.com/attune-hq/attune/internal/scheduler"
	"github.com/attune-hq/attune/internal/storage"
)

// Task ids for the three observation cadences
const (
	TaskCalendar    = "observe-calendar"
	TaskEmail       = "observe-email"
	TaskSuggestions = "generate-suggestions"
)

// Config wires the engine's collaborators. Calendar, Email, and Identity
// are the external feeds; Enabled is the capability flag, re-read every
// tick; Notify fires after any cycle that produced new rows.
type Config struct {
	DB       *storage.DB
	Calendar observe.CalendarSource
	Email    observe.EmailSource
	Identity observe.IdentitySource
	Engine   config.EngineConfig
	Enabled  func() bool
	Notify   func(source string, count int)
}

// Engine is the assembled intelligence loop
type Engine struct {
	db          *storage.DB
	observer    *observe.Observer
	detector    *detect.Manager
	contacts    *storage.ContactStore
	events      *storage.EventStore
	emails      *storage.EmailStore
	suggestions *storage.SuggestionStore
	autonomy    *storage.AutonomyStore
	sched       *scheduler.Scheduler

	calendar observe.CalendarSource
	email    observe.EmailSource
	identity observe.IdentitySource

	calendarInterval   time.Duration
	emailInterval      time.Duration
	suggestionInterval time.Duration
	startupDelay       time.Duration

	enabled func() bool
	notify  func(source string, count int)
}

// New assembles an engine. The database must already be migrated.
func New(cfg Config) *Engine {
	enabled := cfg.Enabled
	if enabled == nil {
		enabled = func() bool { return true }
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(string, int) {}
	}

	return &Engine{
		db:          cfg.DB,
		observer:    observe.New(cfg.DB),
		detector:    detect.NewManager(cfg.DB),
		contacts:    storage.NewContactStore(cfg.DB),
		events:      storage.NewEventStore(cfg.DB),
		emails:      storage.NewEmailStore(cfg.DB),
		suggestions: storage.NewSuggestionStore(cfg.DB),
		autonomy:    storage.NewAutonomyStore(cfg.DB),
		sched:       scheduler.New(),

		calendar: cfg.Calendar,
		email:    cfg.Email,
		identity: cfg.Identity,

		calendarInterval:   minutesOr(cfg.Engine.CalendarIntervalMins, 15),
		emailInterval:      minutesOr(cfg.Engine.EmailIntervalMins, 30),
		suggestionInterval: minutesOr(cfg.Engine.SuggestionIntervalMins, 60),
		startupDelay:       time.Duration(cfg.Engine.StartupDelaySecs) * time.Second,

		enabled: enabled,
		notify:  notify,
	}
}

func minutesOr(mins, fallback int) time.Duration {
	if mins <= 0 {
		mins = fallback
	}
	return time.Duration(mins) * time.Minute
}

// Start registers the three cadences and starts their loops. Ticks are
// no-ops while the capability flag is off, so toggling it takes effect
// on the next interval without a restart.
func (e *Engine) Start() error {
	tasks := []*scheduler.Task{
		scheduler.IntervalTask(TaskCalendar, "Calendar observation",
			e.calendarInterval, e.startupDelay, e.gated("calendar", e.tickCalendar)),
		scheduler.IntervalTask(TaskEmail, "Email observation",
			e.emailInterval, e.startupDelay, e.gated("email", e.tickEmail)),
		scheduler.IntervalTask(TaskSuggestions, "Suggestion generation",
			e.suggestionInterval, e.startupDelay, e.gated("suggestions", e.tickSuggestions)),
	}
	for _, task := range tasks {
		if err := e.sched.Register(task); err != nil {
			return fmt.Errorf("failed to register %s: %w", task.ID, err)
		}
	}
	if err := e.sched.Start(); err != nil {
		return err
	}
	logging.Info("Intelligence engine started (calendar %s, email %s, suggestions %s)",
		e.calendarInterval, e.emailInterval, e.suggestionInterval)
	return nil
}

// Stop stops the timer loops and waits for in-flight cycles
func (e *Engine) Stop() {
	if err := e.sched.Stop(); err != nil {
		logging.Warn("Scheduler stop: %v", err)
	}
	logging.Info("Intelligence engine stopped")
}

// RunNow triggers one task cycle outside its cadence
func (e *Engine) RunNow(taskID string) error {
	return e.sched.RunNow(taskID)
}

// TaskStats reports the scheduler's counters
func (e *Engine) TaskStats() scheduler.Stats {
	return e.sched.GetStats()
}

// Tasks lists the registered cadences
func (e *Engine) Tasks() []*scheduler.Task {
	return e.sched.ListTasks()
}

func (e *Engine) gated(name string, fn func(ctx context.Context) error) scheduler.TaskHandler {
	return func(ctx context.Context) error {
		if !e.enabled() {
			logging.Debug("Skipping %s tick: intelligence disabled", name)
			return nil
		}
		return fn(ctx)
	}
}

func (e *Engine) tickCalendar(ctx context.Context) error {
	count, err := e.ObserveCalendar(ctx)
	if err != nil {
		logging.Warn("Calendar observation failed: %v", err)
		return err
	}
	if count > 0 {
		e.notify("calendar", count)
	}
	return nil
}

func (e *Engine) tickEmail(ctx context.Context) error {
	count, err := e.ObserveEmail(ctx)
	if err != nil {
		logging.Warn("Email observation failed: %v", err)
		return err
	}
	if count > 0 {
		e.notify("email", count)
	}
	return nil
}

func (e *Engine) tickSuggestions(ctx context.Context) error {
	count, warnings := e.GenerateSuggestions()
	for _, w := range warnings {
		logging.Warn("Suggestion generation: %v", w)
	}
	if count > 0 {
		e.notify("suggestions", count)
	}
	return nil
}

// ObserveCalendar runs one calendar ingestion cycle
func (e *Engine) ObserveCalendar(ctx context.Context) (int, error) {
	if e.calendar == nil {
		return 0, core.ErrFeedUnavailable
	}
	log := logging.WithField("cycle", uuid.New().String()[:8])
	count, err := e.observer.ObserveCalendar(ctx, e.calendar)
	if err != nil {
		return 0, err
	}
	log.Debug("Observed %d calendar events", count)
	return count, nil
}

// ObserveEmail runs one email ingestion cycle
func (e *Engine) ObserveEmail(ctx context.Context) (int, error) {
	if e.email == nil {
		return 0, core.ErrFeedUnavailable
	}
	log := logging.WithField("cycle", uuid.New().String()[:8])
	count, err := e.observer.ObserveEmail(ctx, e.email, e.identity)
	if err != nil {
		return 0, err
	}
	log.Debug("Observed %d new email messages", count)
	return count, nil
}

// GenerateSuggestions runs the detectors and the lifecycle sweep.
// Warnings carry per-detector failures that did not stop the run.
func (e *Engine) GenerateSuggestions() (int, []error) {
	return e.detector.Generate(storage.NowUTC())
}
