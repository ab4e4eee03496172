package notify

import (
	"fmt"
	"strings"
)

// Recipient kinds.
const (
	KindTelegram = "telegram"
	KindSlack    = "slack"
)

// Recipient is one staff destination.
type Recipient struct {
	Kind   string
	Target string
}

func (r Recipient) String() string {
	return r.Kind + ":" + r.Target
}

// ParseRecipient accepts "telegram:<chat id>", "slack:<channel>" or a bare
// Telegram chat id.
func ParseRecipient(raw string) (Recipient, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Recipient{}, fmt.Errorf("empty recipient")
	}
	kind, target, ok := strings.Cut(raw, ":")
	if !ok {
		return Recipient{Kind: KindTelegram, Target: raw}, nil
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	target = strings.TrimSpace(target)
	switch kind {
	case KindTelegram, KindSlack:
	default:
		return Recipient{}, fmt.Errorf("unsupported recipient kind: %s", kind)
	}
	if target == "" {
		return Recipient{}, fmt.Errorf("recipient %q has no target", raw)
	}
	return Recipient{Kind: kind, Target: target}, nil
}

// ParseRecipients parses every entry, failing on the first invalid one.
func ParseRecipients(raw []string) ([]Recipient, error) {
	out := make([]Recipient, 0, len(raw))
	for _, item := range raw {
		if strings.TrimSpace(item) == "" {
			continue
		}
		r, err := ParseRecipient(item)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
