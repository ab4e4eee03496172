// Package reminder sends a one-shot payment reminder for orders that are
// still waiting for a receipt after a delay.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/dedup"
	"github.com/memohai/orderbot/internal/dialogue"
)

// DefaultDelay is the wait between entering AwaitingReceipt and the reminder.
const DefaultDelay = 15 * time.Minute

const sendTimeout = 30 * time.Second

// Messenger delivers a text to a customer on a channel.
type Messenger interface {
	SendText(ctx context.Context, channel, target, text string) error
}

// Service schedules reminders keyed by order id. Whether a reminder is still
// due is decided when the timer fires, from the current conversation state.
type Service struct {
	store  *conversation.Store
	out    Messenger
	delay  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	fired  *dedup.Set
	closed bool
}

// NewService creates a reminder service.
func NewService(log *slog.Logger, store *conversation.Store, out Messenger, delay time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Service{
		store:  store,
		out:    out,
		delay:  delay,
		logger: log.With(slog.String("service", "reminder")),
		timers: map[string]*time.Timer{},
		fired:  dedup.NewSet(dedup.DefaultCapacity),
	}
}

// Schedule arms a reminder for orderID unless one is already armed or has fired.
func (s *Service) Schedule(customerID, orderID string) {
	if customerID == "" || orderID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.timers[orderID]; ok || s.fired.Contains(orderID) {
		return
	}
	s.timers[orderID] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.timers, orderID)
		s.fired.Add(orderID)
		s.mu.Unlock()
		s.Fire(context.Background(), customerID, orderID)
	})
	s.logger.Debug("reminder scheduled", slog.String("customer_id", customerID), slog.String("order_id", orderID), slog.Duration("delay", s.delay))
}

// Fire sends the reminder if the conversation still waits on orderID.
// It reports whether a message was sent.
func (s *Service) Fire(ctx context.Context, customerID, orderID string) bool {
	c, ok := s.store.Get(customerID)
	if !ok || c.Phase != conversation.PhaseAwaitingReceipt || c.PendingOrder == nil || c.PendingOrder.ID != orderID {
		s.logger.Debug("reminder no longer due", slog.String("customer_id", customerID), slog.String("order_id", orderID))
		return false
	}
	if c.Channel == "" || c.ReplyTarget == "" {
		s.logger.Warn("reminder has no reply target", slog.String("customer_id", customerID))
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.out.SendText(ctx, c.Channel, c.ReplyTarget, dialogue.Text(c.Language, dialogue.TextReminder)); err != nil {
		s.logger.Error("send reminder failed", slog.String("customer_id", customerID), slog.Any("error", err))
		return false
	}
	s.logger.Info("reminder sent", slog.String("customer_id", customerID), slog.String("order_id", orderID))
	return true
}

// Pending returns the number of armed reminders.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms all reminders; later Schedule calls are ignored.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
