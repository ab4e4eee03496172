package notify

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
)

// SlackAPI is the part of the Slack client used for notifications.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts notifications to channels.
type Slack struct {
	client SlackAPI
}

// NewSlack returns a notifier for token.
func NewSlack(token string) *Slack {
	return &Slack{client: slack.New(token)}
}

// NewSlackWithClient wraps an existing client.
func NewSlackWithClient(client SlackAPI) *Slack {
	return &Slack{client: client}
}

// Notify posts the plain-text rendering, with the receipt link when known.
func (s *Slack) Notify(ctx context.Context, target string, p Payload) error {
	text := PlainText(p.Text)
	if p.ReceiptURL != "" {
		text += "\n<" + p.ReceiptURL + "|Чек>"
	}
	_, _, err := s.client.PostMessageContext(ctx, strings.TrimSpace(target), slack.MsgOptionText(text, false))
	return err
}
