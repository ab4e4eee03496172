// Package conversation owns per-customer dialogue state and its persistence.
package conversation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/orderbot/internal/order"
)

const (
	// MaxHistory bounds the stored history of a conversation.
	MaxHistory = 20
	// WindowSize bounds the history slice sent to the model.
	WindowSize = 10
)

// Phase is the position of a conversation in the order lifecycle.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseAwaitingReceipt Phase = "awaiting_receipt"
	PhasePlaced          Phase = "placed"
)

// Role identifies the author of a history turn.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

var (
	ErrNotFound         = errors.New("conversation not found")
	ErrInvalidState     = errors.New("conversation state invariant violated")
	ErrIllegalMove      = errors.New("illegal phase transition")
	ErrNotAwaiting      = errors.New("conversation is not awaiting a receipt")
	ErrEmptyRecordID    = errors.New("external record id is empty")
	ErrNotActionable    = errors.New("order is not actionable")
	ErrEmptyCustomerKey = errors.New("customer id is empty")
)

// Turn is one history entry.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Conversation is the state kept for one customer identity.
type Conversation struct {
	ID                 string       `json:"id"`
	Channel            string       `json:"channel,omitempty"`
	ReplyTarget        string       `json:"reply_target,omitempty"`
	DisplayName        string       `json:"display_name,omitempty"`
	History            []Turn       `json:"history"`
	Language           string       `json:"language,omitempty"`
	Phase              Phase        `json:"phase"`
	PendingOrder       *order.Order `json:"pending_order,omitempty"`
	ExternalRecordID   string       `json:"external_record_id,omitempty"`
	CompletedRecordIDs []string     `json:"completed_record_ids,omitempty"`
	LastInteraction    time.Time    `json:"last_interaction"`
}

// New returns an idle conversation with an empty history.
func New(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:              id,
		History:         []Turn{},
		Phase:           PhaseIdle,
		LastInteraction: now,
	}
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.History = slices.Clone(c.History)
	if cp.History == nil {
		cp.History = []Turn{}
	}
	cp.CompletedRecordIDs = slices.Clone(c.CompletedRecordIDs)
	cp.PendingOrder = c.PendingOrder.Clone()
	return &cp
}

// Validate checks that exactly the optional field matching the phase is set.
func (c *Conversation) Validate() error {
	switch c.Phase {
	case PhaseIdle:
		if c.PendingOrder != nil || c.ExternalRecordID != "" {
			return fmt.Errorf("%w: idle with order data", ErrInvalidState)
		}
	case PhaseAwaitingReceipt:
		if c.PendingOrder == nil || c.ExternalRecordID != "" {
			return fmt.Errorf("%w: awaiting receipt needs only a pending order", ErrInvalidState)
		}
	case PhasePlaced:
		if c.PendingOrder != nil || c.ExternalRecordID == "" {
			return fmt.Errorf("%w: placed needs only a record id", ErrInvalidState)
		}
	default:
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidState, c.Phase)
	}
	if len(c.History) > MaxHistory {
		return fmt.Errorf("%w: history holds %d turns", ErrInvalidState, len(c.History))
	}
	return nil
}

// Append adds a turn and keeps only the most recent MaxHistory turns.
func (c *Conversation) Append(role Role, text string) {
	c.History = append(c.History, Turn{Role: role, Text: text})
	if over := len(c.History) - MaxHistory; over > 0 {
		c.History = slices.Clone(c.History[over:])
	}
}

// Window returns the history slice fed to the model: the last WindowSize
// turns, keeping only the first turn of each same-role run, and never ending
// on a customer turn.
func (c *Conversation) Window() []Turn {
	recent := c.History
	if len(recent) > WindowSize {
		recent = recent[len(recent)-WindowSize:]
	}
	out := make([]Turn, 0, len(recent))
	var last Role
	for _, turn := range recent {
		if turn.Role != RoleCustomer && turn.Role != RoleAssistant {
			continue
		}
		if turn.Role == last {
			continue
		}
		out = append(out, turn)
		last = turn.Role
	}
	if n := len(out); n > 0 && out[n-1].Role == RoleCustomer {
		out = out[:n-1]
	}
	return out
}

// AwaitReceipt records an actionable order and moves to AwaitingReceipt.
// While already awaiting, the pending order is replaced but keeps its id so a
// scheduled reminder stays valid. From Placed a new cycle starts and the
// previous record id is archived.
func (c *Conversation) AwaitReceipt(o *order.Order) (*order.Order, error) {
	if o == nil || !o.Actionable() {
		return nil, ErrNotActionable
	}
	next := o.Clone()
	switch c.Phase {
	case PhaseAwaitingReceipt:
		if c.PendingOrder != nil && c.PendingOrder.ID != "" {
			next.ID = c.PendingOrder.ID
		}
	case PhasePlaced:
		c.CompletedRecordIDs = append(c.CompletedRecordIDs, c.ExternalRecordID)
		c.ExternalRecordID = ""
	case PhaseIdle:
	default:
		return nil, fmt.Errorf("%w: from %s", ErrIllegalMove, c.Phase)
	}
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	c.Phase = PhaseAwaitingReceipt
	c.PendingOrder = next
	return next.Clone(), nil
}

// Place completes receipt intake: the pending order is discarded and the
// external record id is kept.
func (c *Conversation) Place(recordID string) error {
	if c.Phase != PhaseAwaitingReceipt || c.PendingOrder == nil {
		return ErrNotAwaiting
	}
	if recordID == "" {
		return ErrEmptyRecordID
	}
	c.Phase = PhasePlaced
	c.PendingOrder = nil
	c.ExternalRecordID = recordID
	return nil
}

// Touch updates the last interaction time.
func (c *Conversation) Touch(now time.Time) {
	c.LastInteraction = now
}
