// Package channel connects chat transports to the inbound pipeline and routes
// outbound text back to customers.
package channel

import (
	"strings"
	"time"
)

// ChannelType names a transport.
type ChannelType string

const (
	Telegram ChannelType = "telegram"
	WhatsApp ChannelType = "whatsapp"
)

func (c ChannelType) String() string {
	return string(c)
}

// EventKind classifies an inbound event.
type EventKind string

const (
	KindText        EventKind = "text"
	KindDocument    EventKind = "document"
	KindImage       EventKind = "image"
	KindUnsupported EventKind = "unsupported"
)

// Identity is the customer as seen by the transport.
type Identity struct {
	ExternalID   string
	DisplayName  string
	LanguageHint string
}

// InboundEvent is one customer message.
type InboundEvent struct {
	ID          string
	Channel     ChannelType
	Kind        EventKind
	Text        string
	FileID      string
	FileName    string
	Mime        string
	FileURL     string
	Sender      Identity
	ReplyTarget string
	ReceivedAt  time.Time
}

// CustomerKey is the conversation key: "<channel>:<external id>".
func (e InboundEvent) CustomerKey() string {
	return string(e.Channel) + ":" + strings.TrimSpace(e.Sender.ExternalID)
}

// EventKey identifies the event across transports for deduplication.
func (e InboundEvent) EventKey() string {
	if strings.TrimSpace(e.ID) == "" {
		return ""
	}
	return string(e.Channel) + ":" + e.ID
}

// Command returns the bot command ("/start" → "start") of a text event.
func (e InboundEvent) Command() string {
	if e.Kind != KindText {
		return ""
	}
	text := strings.TrimSpace(e.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.Fields(text)[0][1:]
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// OutboundMessage is plain text addressed to a transport target.
type OutboundMessage struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}
