// Package dialogue drives the sales conversation through the language model
// and turns confirmed orders into pending receipts.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/llm"
	"github.com/memohai/orderbot/internal/order"
)

// Completer is the language model collaborator.
type Completer interface {
	Complete(ctx context.Context, system string, turns []llm.Message) (string, error)
}

// ReminderScheduler is told when an order starts waiting for its receipt.
type ReminderScheduler interface {
	Schedule(customerID, orderID string)
}

// Customer identifies who an inbound message came from and where replies go.
type Customer struct {
	ID           string
	Channel      string
	ReplyTarget  string
	DisplayName  string
	LanguageHint string
}

// Engine implements the dialogue: one Respond call per inbound text.
type Engine struct {
	store     *conversation.Store
	model     Completer
	prompts   *Prompts
	reminders ReminderScheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine. reminders may be nil.
func NewEngine(log *slog.Logger, store *conversation.Store, model Completer, prompts *Prompts, reminders ReminderScheduler) (*Engine, error) {
	if store == nil || model == nil || prompts == nil {
		return nil, errors.New("dialogue engine: store, model and prompts are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     store,
		model:     model,
		prompts:   prompts,
		reminders: reminders,
		logger:    log.With(slog.String("service", "dialogue")),
		now:       time.Now,
	}, nil
}

// Respond answers one customer message. Model failures yield an apology and
// leave history and phase untouched; only the language and last interaction
// time are kept. The returned error is reserved for state store faults.
func (e *Engine) Respond(ctx context.Context, cust Customer, text string) (string, error) {
	log := e.logger.With(slog.String("customer_id", cust.ID))

	var (
		reply   string
		pending *order.Order
	)
	_, err := e.store.Update(ctx, cust.ID, func(c *conversation.Conversation) error {
		reply, pending = "", nil
		e.touch(c, cust)
		if c.Language == "" {
			c.Language = DetectLanguage(text)
		}

		turns := toModelTurns(c.Window())
		turns = append(turns, llm.Message{Role: llm.RoleUser, Content: text})
		raw, err := e.model.Complete(ctx, e.prompts.System(c.Language), turns)
		if err != nil {
			log.Warn("model call failed", slog.Any("error", err))
			reply = Text(c.Language, TextApology)
			return nil
		}

		res := order.Extract(raw)
		if res.Order != nil {
			next, err := c.AwaitReceipt(res.Order)
			if err != nil {
				return err
			}
			pending = next
			log.Info("order awaiting receipt", slog.String("order_id", next.ID), slog.Int64("total", next.TotalPrice))
		} else if res.Matched {
			log.Debug("order payload rejected", slog.Any("error", res.Err))
		}

		reply = res.Display
		if reply == "" {
			if pending != nil {
				reply = Text(c.Language, TextOrderReady)
			} else {
				reply = Text(c.Language, TextApology)
			}
		}
		c.Append(conversation.RoleCustomer, text)
		c.Append(conversation.RoleAssistant, reply)
		return nil
	})
	if err != nil {
		return "", err
	}
	if pending != nil && e.reminders != nil {
		e.reminders.Schedule(cust.ID, pending.ID)
	}
	return reply, nil
}

// Start handles a restart request: the language is reset from the platform
// hint and a greeting is returned. History and order state are kept.
func (e *Engine) Start(ctx context.Context, cust Customer) (string, error) {
	var reply string
	_, err := e.store.Update(ctx, cust.ID, func(c *conversation.Conversation) error {
		e.touch(c, cust)
		c.Language = LanguageFromHint(cust.LanguageHint)
		reply = Welcome(c.Language, c.DisplayName)
		return nil
	})
	return reply, err
}

func (e *Engine) touch(c *conversation.Conversation, cust Customer) {
	c.Touch(e.now())
	if cust.Channel != "" {
		c.Channel = cust.Channel
	}
	if cust.ReplyTarget != "" {
		c.ReplyTarget = cust.ReplyTarget
	}
	if name := strings.TrimSpace(cust.DisplayName); name != "" {
		c.DisplayName = name
	}
}

func toModelTurns(window []conversation.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(window)+1)
	for _, turn := range window {
		role := llm.RoleUser
		if turn.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: turn.Text})
	}
	return out
}
