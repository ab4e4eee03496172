package channel

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
)

const inboundQueueSize = 64

type inboundTask struct {
	ctx    context.Context
	events []InboundEvent
}

func newInboundQueues(workers int) []chan inboundTask {
	queues := make([]chan inboundTask, workers)
	for i := range queues {
		queues[i] = make(chan inboundTask, inboundQueueSize)
	}
	return queues
}

// HandleInbound splits a batch per customer and enqueues each part on the
// worker that owns the customer, so one customer's batches are handled in
// arrival order.
func (m *Manager) HandleInbound(ctx context.Context, events []InboundEvent) error {
	if m.inboundProcessor() == nil {
		return errors.New("inbound processor not configured")
	}
	if len(events) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.startInboundWorkers(ctx)
	if m.inboundCtx != nil && m.inboundCtx.Err() != nil {
		return errors.New("inbound dispatcher stopped")
	}
	taskCtx := context.WithoutCancel(ctx)
	dropped := 0
	for _, part := range splitByCustomer(events) {
		queue := m.inboundQueues[m.workerFor(part[0].CustomerKey())]
		select {
		case queue <- inboundTask{ctx: taskCtx, events: part}:
		default:
			dropped += len(part)
		}
	}
	if dropped > 0 {
		return fmt.Errorf("inbound queue full: dropped %d events", dropped)
	}
	return nil
}

// splitByCustomer groups events by customer key, keeping first-seen order of
// customers and arrival order within each group.
func splitByCustomer(events []InboundEvent) [][]InboundEvent {
	index := map[string]int{}
	var parts [][]InboundEvent
	for _, event := range events {
		key := event.CustomerKey()
		i, ok := index[key]
		if !ok {
			i = len(parts)
			index[key] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], event)
	}
	return parts
}

func (m *Manager) workerFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.inboundQueues)))
}

func (m *Manager) startInboundWorkers(ctx context.Context) {
	m.inboundOnce.Do(func() {
		workerCtx := ctx
		if workerCtx == nil {
			workerCtx = context.Background()
		}
		m.inboundCtx, m.inboundCancel = context.WithCancel(workerCtx)
		for _, queue := range m.inboundQueues {
			go m.runInboundWorker(m.inboundCtx, queue)
		}
	})
}

func (m *Manager) runInboundWorker(ctx context.Context, queue <-chan inboundTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-queue:
			processor := m.inboundProcessor()
			if processor == nil {
				continue
			}
			if err := processor.HandleBatch(task.ctx, task.events, m); err != nil {
				m.logger.Error("inbound processing failed", slog.Int("events", len(task.events)), slog.Any("error", err))
			}
		}
	}
}
