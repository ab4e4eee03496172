package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/dialogue"
	"github.com/memohai/orderbot/internal/logger"
	"github.com/memohai/orderbot/internal/order"
)

type sent struct {
	channel, target, text string
}

type fakeMessenger struct {
	mu   sync.Mutex
	msgs []sent
	ch   chan sent
}

func (m *fakeMessenger) SendText(_ context.Context, channel, target, text string) error {
	m.mu.Lock()
	m.msgs = append(m.msgs, sent{channel, target, text})
	m.mu.Unlock()
	if m.ch != nil {
		m.ch <- sent{channel, target, text}
	}
	return nil
}

func seedAwaiting(t *testing.T, store *conversation.Store, id string) string {
	t.Helper()
	var orderID string
	_, err := store.Update(context.Background(), id, func(c *conversation.Conversation) error {
		c.Channel = "telegram"
		c.ReplyTarget = "42"
		c.Language = dialogue.LangEnglish
		o, err := c.AwaitReceipt(&order.Order{Confirmed: true, Phone: "1", DeliveryAddress: "A", Items: []string{"X"}, TotalPrice: 1})
		if err != nil {
			return err
		}
		orderID = o.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return orderID
}

func TestFireSendsWhileAwaiting(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	orderID := seedAwaiting(t, store, "telegram:42")
	out := &fakeMessenger{}
	svc := NewService(logger.Nop(), store, out, time.Hour)

	if !svc.Fire(context.Background(), "telegram:42", orderID) {
		t.Fatal("expected reminder to be sent")
	}
	if len(out.msgs) != 1 || out.msgs[0].target != "42" || out.msgs[0].text != dialogue.Text(dialogue.LangEnglish, dialogue.TextReminder) {
		t.Fatalf("unexpected messages: %+v", out.msgs)
	}
}

func TestFireChecksPhaseAtFireTime(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	orderID := seedAwaiting(t, store, "c")
	out := &fakeMessenger{}
	svc := NewService(logger.Nop(), store, out, time.Hour)

	if svc.Fire(context.Background(), "c", "other-order") {
		t.Fatal("stale order id must not trigger a reminder")
	}
	if _, err := store.Update(context.Background(), "c", func(c *conversation.Conversation) error {
		return c.Place("rec1")
	}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if svc.Fire(context.Background(), "c", orderID) {
		t.Fatal("placed order must not trigger a reminder")
	}
	if svc.Fire(context.Background(), "missing", orderID) {
		t.Fatal("unknown customer must not trigger a reminder")
	}
	if len(out.msgs) != 0 {
		t.Fatalf("unexpected messages: %+v", out.msgs)
	}
}

func TestScheduleFiresOnceAfterDelay(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	orderID := seedAwaiting(t, store, "c")
	out := &fakeMessenger{ch: make(chan sent, 4)}
	svc := NewService(logger.Nop(), store, out, 10*time.Millisecond)

	svc.Schedule("c", orderID)
	svc.Schedule("c", orderID)
	select {
	case <-out.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not fire")
	}
	select {
	case extra := <-out.ch:
		t.Fatalf("reminder fired twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	if svc.Pending() != 0 {
		t.Fatalf("expected no armed reminders, got %d", svc.Pending())
	}
}

func TestStopDisarms(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	orderID := seedAwaiting(t, store, "c")
	out := &fakeMessenger{}
	svc := NewService(logger.Nop(), store, out, time.Hour)
	svc.Schedule("c", orderID)
	if svc.Pending() != 1 {
		t.Fatalf("expected one armed reminder, got %d", svc.Pending())
	}
	svc.Stop()
	svc.Schedule("c", "another")
	if svc.Pending() != 0 {
		t.Fatalf("expected no armed reminders after stop, got %d", svc.Pending())
	}
}

func TestScheduleIgnoresFiredOrder(t *testing.T) {
	t.Parallel()

	store := conversation.NewStore(logger.Nop(), nil)
	orderID := seedAwaiting(t, store, "c")
	out := &fakeMessenger{ch: make(chan sent, 4)}
	svc := NewService(logger.Nop(), store, out, 5*time.Millisecond)
	svc.Schedule("c", orderID)
	select {
	case <-out.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not fire")
	}
	svc.Schedule("c", orderID)
	if svc.Pending() != 0 {
		t.Fatal("a fired order must not be rescheduled")
	}
}
