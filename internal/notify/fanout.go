package notify

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// Notifier delivers one payload to one target of its kind.
type Notifier interface {
	Notify(ctx context.Context, target string, p Payload) error
}

// Fanout routes payloads to the notifier for each recipient kind under a
// shared outbound rate limit.
type Fanout struct {
	notifiers  map[string]Notifier
	recipients []Recipient
	limiter    *rate.Limiter
}

// NewFanout builds a fanout. ratePerSec <= 0 disables limiting.
func NewFanout(recipients []Recipient, notifiers map[string]Notifier, ratePerSec int) (*Fanout, error) {
	if len(recipients) == 0 {
		return nil, errors.New("notify: at least one recipient is required")
	}
	for _, r := range recipients {
		if notifiers[r.Kind] == nil {
			return nil, fmt.Errorf("notify: no notifier for recipient %s", r)
		}
	}
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = ratePerSec
	}
	return &Fanout{
		notifiers:  notifiers,
		recipients: append([]Recipient(nil), recipients...),
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// Recipients returns the configured recipients.
func (f *Fanout) Recipients() []Recipient {
	return append([]Recipient(nil), f.recipients...)
}

// Send delivers p to r once the rate limiter allows it.
func (f *Fanout) Send(ctx context.Context, r Recipient, p Payload) error {
	n := f.notifiers[r.Kind]
	if n == nil {
		return fmt.Errorf("notify: unsupported recipient kind %s", r.Kind)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	return n.Notify(ctx, r.Target, p)
}
