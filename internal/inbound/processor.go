// Package inbound turns transport events into dialogue turns, receipt
// intake and status replies.
package inbound

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/dedup"
	"github.com/memohai/orderbot/internal/dialogue"
	"github.com/memohai/orderbot/internal/logger"
	"github.com/memohai/orderbot/internal/receipt"
	"github.com/memohai/orderbot/internal/records"
)

// Responder is the dialogue engine.
type Responder interface {
	Respond(ctx context.Context, cust dialogue.Customer, text string) (string, error)
	Start(ctx context.Context, cust dialogue.Customer) (string, error)
}

// Intake attaches receipts to pending orders.
type Intake interface {
	AttachReceipt(ctx context.Context, customerID string, att receipt.Attachment) (string, error)
}

// Options configures a Processor.
type Options struct {
	GateCapacity int
	Workers      int
}

// Processor implements channel.InboundProcessor.
type Processor struct {
	gate    *dedup.Set
	engine  Responder
	intake  Intake
	store   *conversation.Store
	records records.Store
	workers int
	logger  *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(log *slog.Logger, engine Responder, intake Intake, store *conversation.Store, recs records.Store, opts Options) (*Processor, error) {
	if engine == nil || intake == nil || store == nil || recs == nil {
		return nil, errors.New("inbound processor: engine, intake, store and records are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &Processor{
		gate:    dedup.NewSet(opts.GateCapacity),
		engine:  engine,
		intake:  intake,
		store:   store,
		records: recs,
		workers: opts.Workers,
		logger:  log.With(slog.String("service", "inbound")),
	}, nil
}

// HandleBatch drops already seen events, then handles each customer's events
// in order. Customers are processed concurrently.
func (p *Processor) HandleBatch(ctx context.Context, events []channel.InboundEvent, out channel.Outbound) error {
	groups := map[string][]channel.InboundEvent{}
	var order []string
	for _, e := range events {
		if strings.TrimSpace(e.Sender.ExternalID) == "" {
			continue
		}
		if !p.gate.Admit(e.EventKey()) {
			p.logger.Debug("duplicate event dropped", slog.String("event_id", e.EventKey()))
			continue
		}
		key := e.CustomerKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, key := range order {
		g.Go(func() error {
			p.handleCustomer(gctx, groups[key], out)
			return nil
		})
	}
	return g.Wait()
}

// handleCustomer joins consecutive plain texts into one turn; commands and
// attachments are handled one by one in arrival order.
func (p *Processor) handleCustomer(ctx context.Context, events []channel.InboundEvent, out channel.Outbound) {
	ctx = logger.WithCustomer(logger.WithContext(ctx, p.logger), events[0].CustomerKey())
	var texts []string
	var last channel.InboundEvent
	flush := func() {
		if len(texts) == 0 {
			return
		}
		p.handleText(ctx, last, strings.Join(texts, "\n"), out)
		texts = nil
	}
	for _, e := range events {
		if e.Kind == channel.KindText && e.Command() == "" {
			texts = append(texts, e.Text)
			last = e
			continue
		}
		flush()
		switch {
		case e.Command() == "start":
			p.handleStart(ctx, e, out)
		case e.Command() == "status":
			p.handleStatus(ctx, e, out)
		case e.Kind == channel.KindText:
			texts = append(texts, e.Text)
			last = e
		case e.Kind == channel.KindImage, e.Kind == channel.KindDocument:
			p.handleReceipt(ctx, e, out)
		default:
			p.reply(ctx, e, out, dialogue.Text(p.language(e), dialogue.TextUnsupported))
		}
	}
	flush()
}

func customerOf(e channel.InboundEvent) dialogue.Customer {
	return dialogue.Customer{
		ID:           e.CustomerKey(),
		Channel:      string(e.Channel),
		ReplyTarget:  e.ReplyTarget,
		DisplayName:  e.Sender.DisplayName,
		LanguageHint: e.Sender.LanguageHint,
	}
}

func (p *Processor) handleText(ctx context.Context, e channel.InboundEvent, text string, out channel.Outbound) {
	out.Typing(ctx, e.Channel, e.ReplyTarget)
	reply, err := p.engine.Respond(ctx, customerOf(e), text)
	if err != nil {
		logger.FromContext(ctx).Error("respond failed", slog.Any("error", err))
		reply = dialogue.Text(p.language(e), dialogue.TextApology)
	}
	p.reply(ctx, e, out, reply)
}

func (p *Processor) handleStart(ctx context.Context, e channel.InboundEvent, out channel.Outbound) {
	reply, err := p.engine.Start(ctx, customerOf(e))
	if err != nil {
		logger.FromContext(ctx).Error("start failed", slog.Any("error", err))
		reply = dialogue.Text(p.language(e), dialogue.TextApology)
	}
	p.reply(ctx, e, out, reply)
}

func (p *Processor) handleReceipt(ctx context.Context, e channel.InboundEvent, out channel.Outbound) {
	lang := p.language(e)
	customerID := e.CustomerKey()
	if c, ok := p.store.Get(customerID); ok && c.Phase == conversation.PhaseAwaitingReceipt {
		p.reply(ctx, e, out, dialogue.Text(lang, dialogue.TextSavingReceipt))
	}

	kind := "document"
	if e.Kind == channel.KindImage {
		kind = "image"
	}
	att := receipt.Attachment{
		Channel:  string(e.Channel),
		Kind:     kind,
		FileID:   e.FileID,
		FileName: e.FileName,
		Mime:     e.Mime,
		URL:      e.FileURL,
	}
	if att.URL == "" && att.FileID != "" {
		if url, err := out.FileURL(ctx, e.Channel, att.FileID); err == nil {
			att.URL = url
		} else {
			logger.FromContext(ctx).Warn("resolve receipt url failed", slog.Any("error", err))
		}
	}

	var key dialogue.Key
	_, err := p.intake.AttachReceipt(ctx, customerID, att)
	switch {
	case err == nil:
		key = dialogue.TextReceiptSaved
	case errors.Is(err, receipt.ErrPlaceOrderFirst):
		key = dialogue.TextPlaceOrderFirst
	case errors.Is(err, receipt.ErrNoPendingOrder):
		key = dialogue.TextNoPendingOrder
	default:
		logger.FromContext(ctx).Error("receipt intake failed", slog.Any("error", err))
		key = dialogue.TextRecordFailed
	}
	p.reply(ctx, e, out, dialogue.Text(lang, key))
}

func (p *Processor) handleStatus(ctx context.Context, e channel.InboundEvent, out channel.Outbound) {
	p.reply(ctx, e, out, dialogue.Text(p.language(e), p.status(ctx, e.CustomerKey())))
}

func (p *Processor) status(ctx context.Context, customerID string) dialogue.Key {
	c, ok := p.store.Get(customerID)
	if !ok {
		return dialogue.TextStatusNone
	}
	switch c.Phase {
	case conversation.PhaseAwaitingReceipt:
		return dialogue.TextStatusAwaiting
	case conversation.PhasePlaced:
	default:
		return dialogue.TextStatusNone
	}
	rec, err := p.records.Get(ctx, c.ExternalRecordID)
	if err != nil {
		logger.FromContext(ctx).Warn("status lookup failed", slog.Any("error", err))
		return dialogue.TextStatusFailed
	}
	if !rec.Paid {
		return dialogue.TextStatusChecking
	}
	switch rec.KitchenStatus {
	case records.KitchenCooking:
		return dialogue.TextStatusCooking
	case records.KitchenReady:
		return dialogue.TextStatusReady
	default:
		return dialogue.TextStatusPaid
	}
}

// language is the conversation language, or the transport hint for new customers.
func (p *Processor) language(e channel.InboundEvent) string {
	if c, ok := p.store.Get(e.CustomerKey()); ok && c.Language != "" {
		return c.Language
	}
	return dialogue.LanguageFromHint(e.Sender.LanguageHint)
}

func (p *Processor) reply(ctx context.Context, e channel.InboundEvent, out channel.Outbound, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := out.SendText(ctx, string(e.Channel), e.ReplyTarget, text); err != nil {
		logger.FromContext(ctx).Error("send reply failed", slog.Any("error", err))
	}
}
