package observe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/attune-hq/attune/internal/core"
	"github.com/attune-hq/attune/internal/logging"
	"github.com/attune-hq/attune/internal/storage"
)

// ObserveEmail ingests one window of email metadata. Messages without ids
// are skipped, duplicates are ignored, and every participant feeds the
// contact model even when the row itself is a duplicate. After the pass it
// re-runs reply detection so latencies mature as outbound mail arrives.
// Returns the number of newly inserted observations.
func (o *Observer) ObserveEmail(ctx context.Context, src EmailSource, ident IdentitySource) (int, error) {
	threads, err := src.FetchThreads(ctx)
	if err != nil {
		return 0, fmt.Errorf("email fetch: %w", err)
	}

	now := storage.NowUTC()
	selfEmail := o.resolveSelf(ctx, ident)
	count := 0

	for _, thread := range threads {
		if thread.ID == "" {
			continue
		}

		for _, msg := range thread.Messages {
			if msg.ID == "" {
				continue
			}

			var headers []Header
			if msg.Payload != nil {
				headers = msg.Payload.Headers
			}

			fromEmail := ""
			if raw, ok := findHeader(headers, "From"); ok {
				fromEmail = ExtractAddress(raw)
			}

			var toEmails []string
			if raw, ok := findHeader(headers, "To"); ok {
				for _, part := range strings.Split(raw, ",") {
					if addr := ExtractAddress(strings.TrimSpace(part)); addr != "" {
						toEmails = append(toEmails, addr)
					}
				}
			}

			subject, _ := findHeader(headers, "Subject")

			obs := core.EmailObservation{
				ThreadID:   thread.ID,
				MessageID:  msg.ID,
				FromEmail:  fromEmail,
				ToEmails:   toEmails,
				Subject:    subject,
				Timestamp:  parseInternalDate(msg.InternalDate, now),
				IsInbound:  classifyDirection(fromEmail, selfEmail),
				Labels:     msg.LabelIDs,
				ObservedAt: now,
			}

			inserted, err := o.emails.Insert(obs)
			if err != nil {
				logging.Warn("Skipping message %s: %v", msg.ID, err)
				continue
			}
			if inserted {
				count++
			}

			if fromEmail != "" {
				if err := o.contacts.Touch(fromEmail, "", core.ChannelEmail, now); err != nil {
					logging.Warn("Contact touch failed for %s: %v", fromEmail, err)
				}
			}
			for _, to := range toEmails {
				if err := o.contacts.Touch(to, "", core.ChannelEmail, now); err != nil {
					logging.Warn("Contact touch failed for %s: %v", to, err)
				}
			}
		}
	}

	if err := o.emails.DetectReplyPatterns(); err != nil {
		return count, err
	}
	if err := o.contacts.UpdateAvgResponseTimes(); err != nil {
		return count, err
	}

	return count, nil
}

// resolveSelf prefers the identity lookup, then falls back to the most
// frequent sender among messages carrying a sent label.
func (o *Observer) resolveSelf(ctx context.Context, ident IdentitySource) string {
	if ident != nil {
		if email, err := ident.SelfEmail(ctx); err == nil && email != "" {
			return email
		}
	}
	self, err := o.emails.MostFrequentSentSender()
	if err != nil {
		logging.Warn("Self-address fallback failed: %v", err)
		return ""
	}
	return self
}

// classifyDirection returns nil when the direction cannot be determined.
func classifyDirection(fromEmail, selfEmail string) *bool {
	if fromEmail == "" || selfEmail == "" {
		return nil
	}
	inbound := !strings.EqualFold(fromEmail, selfEmail)
	return &inbound
}

// findHeader looks a header up by exact name match, as delivered.
func findHeader(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// ExtractAddress pulls a plain address out of a "Display Name <addr>" or
// bare-address header value. The last <...> pair wins; without brackets the
// whole trimmed value is treated as the address. Always lowercased.
func ExtractAddress(raw string) string {
	if start := strings.LastIndex(raw, "<"); start >= 0 {
		if end := strings.LastIndex(raw, ">"); end > start {
			return strings.ToLower(strings.TrimSpace(raw[start+1 : end]))
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// parseInternalDate converts a millisecond epoch string, falling back to
// the ingestion time when the source omits or mangles it.
func parseInternalDate(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}
