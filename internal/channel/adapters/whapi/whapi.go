// Package whapi is the WhatsApp transport over the whapi.cloud gateway. It
// polls for new messages and also accepts webhook pushes.
package whapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/channel/adapters/adapterutil"
)

const (
	Type           = channel.WhatsApp
	DefaultBaseURL = "https://gate.whapi.cloud"
	pageSize       = 20
)

// Options configures the adapter.
type Options struct {
	BaseURL      string
	Token        string
	Poll         bool
	PollInterval time.Duration
	Timeout      time.Duration
}

// Adapter talks to the whapi gateway.
type Adapter struct {
	baseURL  string
	token    string
	poll     bool
	interval time.Duration
	http     *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	since  int64
	atEdge map[string]struct{}
}

// NewAdapter validates opts. Polling starts at the adapter's creation time and
// the cursor moves forward to the newest message timestamp seen.
func NewAdapter(log *slog.Logger, opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("whapi token is required")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		poll:     opts.Poll,
		interval: opts.PollInterval,
		http:     &http.Client{Timeout: opts.Timeout},
		logger:   log.With(slog.String("adapter", "whapi")),
		since:    time.Now().Unix(),
	}, nil
}

func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// Message is a whapi message as returned by /messages/list and pushed to webhooks.
type Message struct {
	ID        string `json:"id"`
	FromMe    bool   `json:"from_me"`
	Type      string `json:"type"`
	ChatID    string `json:"chat_id"`
	From      string `json:"from"`
	FromName  string `json:"from_name"`
	Timestamp int64  `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *Media `json:"image,omitempty"`
	Document *Media `json:"document,omitempty"`
}

// Media is the attachment part of a message.
type Media struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
	Caption  string `json:"caption"`
}

// Payload is the body of /messages/list responses and webhook pushes.
type Payload struct {
	Messages []Message `json:"messages"`
}

// Connect starts polling when enabled; with polling off events arrive only
// through webhook pushes and the connection is a no-op.
func (a *Adapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	if !a.poll {
		return channel.NewConnection(Type, func(context.Context) error { return nil }), nil
	}
	connCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				events, err := a.Poll(connCtx)
				if err != nil {
					a.logger.Warn("poll messages failed", slog.Any("error", err))
					continue
				}
				if len(events) == 0 {
					continue
				}
				if err := handler(connCtx, events); err != nil {
					a.logger.Error("handle inbound failed", slog.Any("error", err))
				}
			}
		}
	}()
	stop := func(context.Context) error {
		a.logger.Info("stop")
		cancel()
		return nil
	}
	return channel.NewConnection(Type, stop), nil
}

// Poll fetches messages at or after the cursor, oldest first. Messages already
// returned at the cursor second are skipped.
func (a *Adapter) Poll(ctx context.Context) ([]channel.InboundEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	params := url.Values{}
	params.Set("count", strconv.Itoa(pageSize))
	params.Set("time_from", strconv.FormatInt(a.since, 10))
	var page Payload
	if err := a.do(ctx, http.MethodGet, "/messages/list", params, nil, &page); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(page.Messages))
	for i := len(page.Messages) - 1; i >= 0; i-- {
		m := page.Messages[i]
		if _, ok := a.atEdge[m.ID]; ok && m.Timestamp == a.since {
			continue
		}
		msgs = append(msgs, m)
	}
	a.advance(msgs)
	return a.Events(msgs), nil
}

// advance moves the cursor to the newest timestamp in msgs and remembers the
// ids seen at that second.
func (a *Adapter) advance(msgs []Message) {
	for _, m := range msgs {
		switch {
		case m.Timestamp > a.since:
			a.since = m.Timestamp
			a.atEdge = map[string]struct{}{m.ID: {}}
		case m.Timestamp == a.since:
			if a.atEdge == nil {
				a.atEdge = map[string]struct{}{}
			}
			a.atEdge[m.ID] = struct{}{}
		}
	}
}

// Events converts messages, dropping the bot's own messages and group chats.
func (a *Adapter) Events(msgs []Message) []channel.InboundEvent {
	out := make([]channel.InboundEvent, 0, len(msgs))
	for _, m := range msgs {
		event, ok := toEvent(m)
		if !ok {
			continue
		}
		a.logger.Info("inbound received",
			slog.String("chat_id", event.ReplyTarget),
			slog.String("kind", string(event.Kind)),
			slog.String("text", adapterutil.SummarizeText(event.Text)),
		)
		out = append(out, event)
	}
	return out
}

// ParseWebhook decodes a webhook push body.
func ParseWebhook(body []byte) ([]Message, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode whapi webhook: %w", err)
	}
	return payload.Messages, nil
}

func toEvent(m Message) (channel.InboundEvent, bool) {
	chatID := strings.TrimSpace(m.ChatID)
	if m.FromMe || chatID == "" || strings.HasSuffix(chatID, "@g.us") {
		return channel.InboundEvent{}, false
	}
	event := channel.InboundEvent{
		ID:          m.ID,
		Channel:     Type,
		ReplyTarget: chatID,
		Sender: channel.Identity{
			ExternalID:  chatID,
			DisplayName: strings.TrimSpace(m.FromName),
		},
	}
	if m.Timestamp > 0 {
		event.ReceivedAt = time.Unix(m.Timestamp, 0).UTC()
	}
	switch {
	case m.Type == "text" && m.Text != nil:
		event.Kind = channel.KindText
		event.Text = strings.TrimSpace(m.Text.Body)
	case m.Type == "image" && m.Image != nil:
		event.Kind = channel.KindImage
		fillMedia(&event, m.Image, m.ID)
	case m.Type == "document" && m.Document != nil:
		event.Kind = channel.KindDocument
		fillMedia(&event, m.Document, m.ID)
	default:
		event.Kind = channel.KindUnsupported
	}
	if event.Kind == channel.KindText && event.Text == "" {
		return channel.InboundEvent{}, false
	}
	return event, true
}

func fillMedia(event *channel.InboundEvent, media *Media, messageID string) {
	event.FileID = media.ID
	if event.FileID == "" {
		event.FileID = messageID
	}
	event.FileURL = media.Link
	event.FileName = media.FileName
	event.Mime = media.MimeType
	event.Text = strings.TrimSpace(media.Caption)
}

func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	if strings.TrimSpace(msg.Target) == "" {
		return errors.New("whapi target is required")
	}
	return a.do(ctx, http.MethodPost, "/messages/text", nil, map[string]any{"to": msg.Target, "body": msg.Text}, nil)
}

func (a *Adapter) Typing(ctx context.Context, target string) error {
	return a.do(ctx, http.MethodPost, "/messages/typing", nil, map[string]any{"to": target, "duration": 2}, nil)
}

// FileURL asks the gateway for a download link of a media message.
func (a *Adapter) FileURL(ctx context.Context, fileID string) (string, error) {
	if strings.TrimSpace(fileID) == "" {
		return "", errors.New("file id is required")
	}
	var out struct {
		MediaURL string `json:"media_url"`
	}
	if err := a.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(fileID)+"/media", nil, nil, &out); err != nil {
		return "", err
	}
	if out.MediaURL == "" {
		return "", errors.New("whapi media has no url")
	}
	return out.MediaURL, nil
}

func (a *Adapter) do(ctx context.Context, method, endpoint string, params url.Values, body any, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", a.token)
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint+"?"+params.Encode(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whapi %s %s: status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
