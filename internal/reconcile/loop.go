// Package reconcile polls the record store for paid orders and dispatches
// each one to the kitchen once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/orderbot/internal/dedup"
	"github.com/memohai/orderbot/internal/notify"
	"github.com/memohai/orderbot/internal/records"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultSeenCapacity = 10000
)

// Dispatcher delivers kitchen notifications.
type Dispatcher interface {
	Recipients() []notify.Recipient
	Send(ctx context.Context, r notify.Recipient, p notify.Payload) error
}

// Options tunes the loop; zero values use defaults.
type Options struct {
	Interval     time.Duration
	SeenCapacity int
	Timeout      time.Duration
}

// Result summarizes one tick.
type Result struct {
	Due        int
	Skipped    int
	Dispatched int
	Failed     int
}

// Loop is the reconciliation process.
type Loop struct {
	records    records.Store
	dispatcher Dispatcher
	seen       *dedup.Set
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	ticks   atomic.Int64
}

// NewLoop creates a loop; call Start to begin polling.
func NewLoop(log *slog.Logger, recs records.Store, dispatcher Dispatcher, opts Options) (*Loop, error) {
	if recs == nil || dispatcher == nil {
		return nil, errors.New("reconcile: records and dispatcher are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = DefaultSeenCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Loop{
		records:    recs,
		dispatcher: dispatcher,
		seen:       dedup.NewSet(opts.SeenCapacity),
		interval:   opts.Interval,
		timeout:    opts.Timeout,
		logger:     log.With(slog.String("service", "reconcile")),
		now:        time.Now,
	}, nil
}

// Start schedules Tick every interval. A tick still running when the next
// one is due causes that one to be skipped.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cron != nil {
		return nil
	}
	cl := cronLogger{l.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	id, err := c.AddFunc(fmt.Sprintf("@every %s", l.interval), func() {
		l.Tick(context.WithoutCancel(ctx))
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile tick: %w", err)
	}
	l.cron = c
	l.entryID = id
	c.Start()
	l.logger.Info("reconcile loop started", slog.Duration("interval", l.interval))
	return nil
}

// Stop halts scheduling and waits for a running tick.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	c := l.cron
	l.cron = nil
	l.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ticks reports how many ticks have run.
func (l *Loop) Ticks() int64 {
	return l.ticks.Load()
}

// Tick runs one poll-and-notify cycle. Errors are logged, never returned:
// records that could not be dispatched stay waiting for the next tick.
func (l *Loop) Tick(ctx context.Context) Result {
	l.ticks.Add(1)
	var res Result

	queryCtx, cancel := context.WithTimeout(ctx, l.timeout)
	due, err := l.records.Query(queryCtx, records.PaidAndWaiting())
	cancel()
	if err != nil {
		l.logger.Error("query paid orders failed", slog.Any("error", err))
		return res
	}
	res.Due = len(due)

	for _, rec := range due {
		if ctx.Err() != nil {
			return res
		}
		if rec.ID == "" || l.seen.Contains(rec.ID) {
			res.Skipped++
			continue
		}
		if l.dispatch(ctx, rec) {
			res.Dispatched++
		} else {
			res.Failed++
		}
	}
	if res.Dispatched > 0 || res.Failed > 0 {
		l.logger.Info("reconcile tick", slog.Int("due", res.Due), slog.Int("dispatched", res.Dispatched), slog.Int("failed", res.Failed))
	}
	return res
}

// dispatch notifies every recipient in parallel; one acknowledgement is enough.
func (l *Loop) dispatch(ctx context.Context, rec records.Record) bool {
	log := l.logger.With(slog.String("record_id", rec.ID))
	payload, err := notify.FromRecord(rec, l.now())
	if err != nil {
		log.Error("render notification failed", slog.Any("error", err))
		return false
	}

	acks, err := l.deliver(ctx, payload)
	if acks == 0 {
		log.Error("no recipient acknowledged order", slog.Any("error", err))
		return false
	}
	if err != nil {
		log.Warn("partial kitchen delivery", slog.Int("acks", acks), slog.Any("error", err))
	}

	l.seen.Add(rec.ID)
	updateCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.records.UpdateStatus(updateCtx, rec.ID, records.FieldKitchenStatus, records.KitchenCooking); err != nil {
		log.Error("mark order cooking failed", slog.Any("error", err))
	}
	log.Info("order sent to kitchen", slog.Int("acks", acks))
	return true
}

// deliver sends payload to every recipient concurrently and returns the number
// of acknowledgements with the first send failure.
func (l *Loop) deliver(ctx context.Context, payload notify.Payload) (int, error) {
	var (
		acks atomic.Int32
		g    errgroup.Group
	)
	for _, r := range l.dispatcher.Recipients() {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, l.timeout)
			defer cancel()
			if err := l.dispatcher.Send(sendCtx, r, payload); err != nil {
				return fmt.Errorf("notify %s: %w", r, err)
			}
			acks.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(acks.Load()), err
}

type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
