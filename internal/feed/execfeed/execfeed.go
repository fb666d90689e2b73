// Package execfeed sources observations by shelling out to the gog CLI,
// which owns Google authentication and returns JSON on stdout.
package execfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/attune-hq/attune/internal/config"
	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/observe"
	"github.com/attune-hq/attune/internal/storage"
)

// Feed runs the gog binary for each fetch. Invocations are stateless;
// the binary holds its own credentials.
type Feed struct {
	binary    string
	lookback  int
	lookahead int
	maxEmails int
}

// New creates a CLI-backed feed
func New(cfg config.FeedConfig) *Feed {
	binary := cfg.Binary
	if binary == "" {
		binary = "gog"
	}
	return &Feed{
		binary:    binary,
		lookback:  cfg.CalendarLookbackDays,
		lookahead: cfg.CalendarLookaheadDays,
		maxEmails: cfg.EmailMaxResults,
	}
}

// FetchEvents pulls the primary calendar for the rolling window.
func (f *Feed) FetchEvents(ctx context.Context) ([]observe.Event, error) {
	now := time.Now()
	out, err := f.run(ctx,
		"calendar", "events", "primary",
		"--from", storage.DaysAgo(now, f.lookback),
		"--to", storage.DaysAhead(now, f.lookahead),
		"--max", "200",
		"--json",
		"--no-input",
	)
	if err != nil {
		return nil, err
	}
	return observe.DecodeCalendarPayload(out)
}

// FetchThreads pulls threads active in the last 24 hours.
func (f *Feed) FetchThreads(ctx context.Context) ([]observe.Thread, error) {
	out, err := f.run(ctx,
		"gmail", "search", "newer_than:24h",
		"--max", fmt.Sprint(f.maxEmails),
		"--json",
		"--no-input",
	)
	if err != nil {
		return nil, err
	}
	return observe.DecodeEmailPayload(out)
}

type whoami struct {
	Email string `json:"email"`
}

// SelfEmail asks the CLI which account it is authorized as.
func (f *Feed) SelfEmail(ctx context.Context) (string, error) {
	out, err := f.run(ctx, "auth", "whoami", "--json", "--no-input")
	if err != nil {
		return "", err
	}
	var who whoami
	if err := json.Unmarshal(out, &who); err != nil {
		return "", fmt.Errorf("%w: whoami payload", core.ErrFeedPayload)
	}
	if who.Email == "" {
		return "", core.ErrNotAuthorized
	}
	return who.Email, nil
}

func (f *Feed) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s %s: %s", core.ErrFeedUnavailable, f.binary, args[0], msg)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", core.ErrFeedUnavailable, f.binary, args[0], err)
	}
	return stdout.Bytes(), nil
}
