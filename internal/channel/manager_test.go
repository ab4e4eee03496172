package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memohai/orderbot/internal/logger"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]InboundEvent
}

func (p *recordingProcessor) HandleBatch(_ context.Context, events []InboundEvent, _ Outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []OutboundMessage
	failures int
	typing   []string
	handler  InboundHandler
	stopped  bool
}

func (a *fakeAdapter) Type() ChannelType { return Telegram }

func (a *fakeAdapter) Send(_ context.Context, msg OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return errors.New("temporary")
	}
	a.sent = append(a.sent, msg)
	return nil
}

func (a *fakeAdapter) Typing(_ context.Context, target string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.typing = append(a.typing, target)
	return nil
}

func (a *fakeAdapter) Connect(_ context.Context, handler InboundHandler) (Connection, error) {
	a.mu.Lock()
	a.handler = handler
	a.mu.Unlock()
	return NewConnection(Telegram, func(context.Context) error {
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()
		return nil
	}), nil
}

func newTestManager(p InboundProcessor) *Manager {
	m := NewManager(logger.Nop(), 2)
	m.SetProcessor(p)
	m.retryBackoff = time.Millisecond
	return m
}

func TestManagerRoutesInboundBatches(t *testing.T) {
	t.Parallel()

	p := &recordingProcessor{}
	a := &fakeAdapter{}
	m := newTestManager(p)
	m.RegisterAdapter(a)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler == nil {
		t.Fatal("receiver was not connected")
	}
	if err := handler(ctx, []InboundEvent{{ID: "1", Channel: Telegram, Kind: KindText, Text: "hi"}}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for p.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.count() != 1 {
		t.Fatalf("expected one batch, got %d", p.count())
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.stopped {
		t.Fatal("connection not stopped")
	}
}

func TestManagerSendTextRetries(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{failures: 2}
	m := newTestManager(&recordingProcessor{})
	m.RegisterAdapter(a)
	if err := m.SendText(context.Background(), "Telegram", "42", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(a.sent) != 1 || a.sent[0].Target != "42" {
		t.Fatalf("unexpected sends %+v", a.sent)
	}

	a.failures = 5
	if err := m.SendText(context.Background(), "telegram", "42", "hello"); err == nil {
		t.Fatal("expected failure after retries")
	}
	if err := m.SendText(context.Background(), "whatsapp", "x", "hello"); err == nil {
		t.Fatal("expected unsupported channel error")
	}
	if err := m.SendText(context.Background(), "telegram", "42", " "); err == nil {
		t.Fatal("expected empty message error")
	}
}

func TestManagerTypingAndFileURL(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{}
	m := newTestManager(&recordingProcessor{})
	m.RegisterAdapter(a)
	m.Typing(context.Background(), Telegram, "42")
	m.Typing(context.Background(), WhatsApp, "x")
	if len(a.typing) != 1 {
		t.Fatalf("unexpected typing calls %v", a.typing)
	}
	if _, err := m.FileURL(context.Background(), Telegram, "F"); err == nil {
		t.Fatal("adapter without resolver must fail")
	}
}

type slowProcessor struct {
	mu    sync.Mutex
	order map[string][]string
	done  chan struct{}
	want  int
	seen  int
}

func (p *slowProcessor) HandleBatch(_ context.Context, events []InboundEvent, _ Outbound) error {
	if events[0].ID == "a1" {
		time.Sleep(50 * time.Millisecond)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		p.order[e.CustomerKey()] = append(p.order[e.CustomerKey()], e.ID)
		p.seen++
	}
	if p.seen == p.want {
		close(p.done)
	}
	return nil
}

func TestHandleInboundKeepsCustomerOrder(t *testing.T) {
	t.Parallel()

	p := &slowProcessor{order: map[string][]string{}, done: make(chan struct{}), want: 4}
	m := NewManager(logger.Nop(), 4)
	m.SetProcessor(p)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := func(id string) InboundEvent {
		return InboundEvent{ID: id, Channel: WhatsApp, Kind: KindText, Text: id, Sender: Identity{ExternalID: "a"}}
	}
	b := InboundEvent{ID: "b1", Channel: WhatsApp, Kind: KindText, Text: "b", Sender: Identity{ExternalID: "b"}}
	if err := m.HandleInbound(ctx, []InboundEvent{a("a1"), b}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := m.HandleInbound(ctx, []InboundEvent{a("a2"), a("a3")}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batches were not processed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	got := p.order["whatsapp:a"]
	if len(got) != 3 || got[0] != "a1" || got[1] != "a2" || got[2] != "a3" {
		t.Fatalf("customer batches reordered: %v", got)
	}
}

func TestSplitByCustomer(t *testing.T) {
	t.Parallel()

	events := []InboundEvent{
		{ID: "1", Channel: Telegram, Sender: Identity{ExternalID: "x"}},
		{ID: "2", Channel: Telegram, Sender: Identity{ExternalID: "y"}},
		{ID: "3", Channel: Telegram, Sender: Identity{ExternalID: "x"}},
	}
	parts := splitByCustomer(events)
	if len(parts) != 2 || len(parts[0]) != 2 || parts[0][1].ID != "3" || parts[1][0].ID != "2" {
		t.Fatalf("unexpected split %+v", parts)
	}
}

func TestHandleInboundWithoutProcessor(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, 1)
	if err := m.HandleInbound(context.Background(), []InboundEvent{{ID: "1"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestInboundEventHelpers(t *testing.T) {
	t.Parallel()

	e := InboundEvent{ID: "9", Channel: WhatsApp, Kind: KindText, Text: "/Status@orderbot now", Sender: Identity{ExternalID: "77@s.whatsapp.net"}}
	if e.Command() != "status" {
		t.Fatalf("unexpected command %q", e.Command())
	}
	if e.CustomerKey() != "whatsapp:77@s.whatsapp.net" || e.EventKey() != "whatsapp:9" {
		t.Fatalf("unexpected keys %s %s", e.CustomerKey(), e.EventKey())
	}
	if (InboundEvent{Kind: KindText, Text: "hi"}).Command() != "" {
		t.Fatal("plain text is not a command")
	}
	if (InboundEvent{}).EventKey() != "" {
		t.Fatal("empty id must give empty key")
	}
}
