// Package receipt attaches payment receipts to pending orders and creates the
// external order record.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/memohai/orderbot/internal/attachment"
	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/records"
)

var (
	ErrPlaceOrderFirst = errors.New("place an order first")
	ErrNoPendingOrder  = errors.New("no order to attach receipt to")
	ErrRecordCreate    = errors.New("failed to create order record")
)

// Attachment locates a receipt file on its transport.
type Attachment struct {
	Channel  string
	Kind     string
	FileID   string
	FileName string
	Mime     string
	URL      string
}

// Reference is the stable locator kept on the record: "<channel>:<kind>:<file id>".
func (a Attachment) Reference() string {
	kind := a.Kind
	if kind == "" {
		kind = attachment.KindDocument
	}
	return a.Channel + ":" + kind + ":" + a.FileID
}

// ParseReference splits a reference produced by Attachment.Reference.
func ParseReference(ref string) (Attachment, bool) {
	r, ok := records.ParseReceiptReference(ref)
	if !ok {
		return Attachment{}, false
	}
	return Attachment{Channel: r.Channel, Kind: r.Kind, FileID: r.FileID}, true
}

// Fetcher downloads a transport file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Intake moves AwaitingReceipt conversations to Placed.
type Intake struct {
	store    *conversation.Store
	records  records.Store
	uploader attachment.Uploader
	fetcher  Fetcher
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Options configures optional collaborators. Without an uploader no durable
// URL is stored and staff work from the receipt reference alone.
type Options struct {
	Uploader attachment.Uploader
	Fetcher  Fetcher
	Timeout  time.Duration
}

// NewIntake creates an intake service.
func NewIntake(log *slog.Logger, store *conversation.Store, recs records.Store, opts Options) (*Intake, error) {
	if store == nil || recs == nil {
		return nil, errors.New("receipt intake: store and records are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Intake{
		store:    store,
		records:  recs,
		uploader: opts.Uploader,
		fetcher:  opts.Fetcher,
		timeout:  opts.Timeout,
		logger:   log.With(slog.String("service", "receipt")),
		now:      time.Now,
	}, nil
}

// AttachReceipt binds att to the customer's pending order and creates its
// record. The record is created at most once per pending order: the
// per-customer lock is held throughout and a second receipt finds the
// conversation already placed. On any failure the conversation is unchanged.
func (i *Intake) AttachReceipt(ctx context.Context, customerID string, att Attachment) (string, error) {
	log := i.logger.With(slog.String("customer_id", customerID))
	if strings.TrimSpace(att.FileID) == "" {
		return "", errors.New("receipt attachment has no file id")
	}

	var recordID string
	_, err := i.store.UpdateExisting(ctx, customerID, func(c *conversation.Conversation) error {
		switch {
		case c.Phase == conversation.PhaseIdle:
			return ErrPlaceOrderFirst
		case c.Phase != conversation.PhaseAwaitingReceipt, c.PendingOrder == nil:
			return ErrNoPendingOrder
		}
		c.Touch(i.now())

		o := c.PendingOrder.Clone()
		o.ReceiptReference = att.Reference()
		o.ReceiptKind = att.Kind
		o.ReceiptURL = i.durableURL(ctx, log, customerID, att)

		createCtx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()
		id, err := i.records.Create(createCtx, records.FromOrder(*o))
		if err != nil {
			log.Error("create order record failed", slog.String("order_id", o.ID), slog.Any("error", err))
			return fmt.Errorf("%w: %w", ErrRecordCreate, err)
		}
		if err := c.Place(id); err != nil {
			return err
		}
		recordID = id
		log.Info("order placed", slog.String("order_id", o.ID), slog.String("record_id", id), slog.Bool("receipt_url", o.ReceiptURL != ""))
		return nil
	})
	if errors.Is(err, conversation.ErrNotFound) {
		return "", ErrPlaceOrderFirst
	}
	if err != nil {
		return "", err
	}
	return recordID, nil
}

// durableURL uploads the receipt, returning "" when that is not possible.
func (i *Intake) durableURL(ctx context.Context, log *slog.Logger, customerID string, att Attachment) string {
	if i.uploader == nil || i.fetcher == nil || strings.TrimSpace(att.URL) == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 3*i.timeout)
	defer cancel()

	data, mime, err := i.fetcher.Fetch(ctx, att.URL)
	if err != nil {
		log.Warn("download receipt failed", slog.Any("error", err))
		return ""
	}
	mime = attachment.DetectMime(att.Kind, firstNonEmpty(att.Mime, mime), data)
	name := fmt.Sprintf("receipt_%s_%s", strings.ReplaceAll(customerID, ":", "_"), i.now().UTC().Format("20060102_150405")) + path.Ext(att.FileName)
	url, err := i.uploader.Upload(ctx, data, attachment.FileName(name, mime), mime)
	if err != nil {
		log.Warn("upload receipt failed", slog.Any("error", err))
		return ""
	}
	return url
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
