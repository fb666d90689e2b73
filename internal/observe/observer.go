package observe

import (
	"context"

	"github.com/attune-hq/attune/internal/storage"
)

// CalendarSource supplies calendar events for a rolling window.
type CalendarSource interface {
	FetchEvents(ctx context.Context) ([]Event, error)
}

// EmailSource supplies recent email threads with message metadata.
type EmailSource interface {
	FetchThreads(ctx context.Context) ([]Thread, error)
}

// IdentitySource resolves the account's own email address.
type IdentitySource interface {
	SelfEmail(ctx context.Context) (string, error)
}

// Observer runs ingestion cycles against the store.
type Observer struct {
	db       *storage.DB
	contacts *storage.ContactStore
	events   *storage.EventStore
	emails   *storage.EmailStore
}

// New creates an observer over the given database
func New(db *storage.DB) *Observer {
	return &Observer{
		db:       db,
		contacts: storage.NewContactStore(db),
		events:   storage.NewEventStore(db),
		emails:   storage.NewEmailStore(db),
	}
}
