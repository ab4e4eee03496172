package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultRetryMax     = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// Manager owns the transport adapters: it connects receivers, queues their
// batches for the processor and sends outbound text.
type Manager struct {
	processor InboundProcessor
	procMu    sync.RWMutex
	adapters  map[ChannelType]Adapter
	senders   map[ChannelType]Sender
	receivers map[ChannelType]Receiver
	logger    *slog.Logger

	retryMax     int
	retryBackoff time.Duration

	inboundQueues []chan inboundTask
	inboundOnce   sync.Once
	inboundCtx    context.Context
	inboundCancel context.CancelFunc
	adapterMu     sync.RWMutex
	mu            sync.Mutex
	connections   map[ChannelType]Connection
}

// NewManager creates a manager; workers <= 0 uses 4. The processor is
// attached with SetProcessor once the pipeline is built.
func NewManager(log *slog.Logger, workers int) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Manager{
		adapters:      map[ChannelType]Adapter{},
		senders:       map[ChannelType]Sender{},
		receivers:     map[ChannelType]Receiver{},
		connections:   map[ChannelType]Connection{},
		logger:        log.With(slog.String("component", "channel")),
		retryMax:      defaultRetryMax,
		retryBackoff:  defaultRetryBackoff,
		inboundQueues: newInboundQueues(workers),
	}
}

// SetProcessor attaches the inbound processor.
func (m *Manager) SetProcessor(p InboundProcessor) {
	m.procMu.Lock()
	m.processor = p
	m.procMu.Unlock()
}

func (m *Manager) inboundProcessor() InboundProcessor {
	m.procMu.RLock()
	defer m.procMu.RUnlock()
	return m.processor
}

func (m *Manager) RegisterAdapter(adapter Adapter) {
	if adapter == nil {
		return
	}
	m.adapterMu.Lock()
	m.adapters[adapter.Type()] = adapter
	if sender, ok := adapter.(Sender); ok {
		m.senders[adapter.Type()] = sender
	}
	if receiver, ok := adapter.(Receiver); ok {
		m.receivers[adapter.Type()] = receiver
	}
	m.adapterMu.Unlock()
	m.logger.Info("adapter registered", slog.String("channel", adapter.Type().String()))
}

// Start launches the inbound workers and connects every receiver. A receiver
// that fails to connect is logged and skipped.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("manager start")
	m.startInboundWorkers(ctx)

	m.adapterMu.RLock()
	receivers := make(map[ChannelType]Receiver, len(m.receivers))
	for t, r := range m.receivers {
		receivers[t] = r
	}
	m.adapterMu.RUnlock()

	for channelType, receiver := range receivers {
		conn, err := receiver.Connect(ctx, m.HandleInbound)
		if err != nil {
			m.logger.Error("adapter start failed", slog.String("channel", channelType.String()), slog.Any("error", err))
			continue
		}
		m.mu.Lock()
		m.connections[channelType] = conn
		m.mu.Unlock()
		m.logger.Info("adapter start", slog.String("channel", channelType.String()))
	}
}

// Shutdown stops the workers and every connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.inboundCancel != nil {
		m.inboundCancel()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for channelType, conn := range m.connections {
		m.logger.Info("adapter stop", slog.String("channel", channelType.String()))
		if err := conn.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
			errs = append(errs, err)
		}
		delete(m.connections, channelType)
	}
	return errors.Join(errs...)
}

// SendText sends text to target on channelType, retrying transient failures.
func (m *Manager) SendText(ctx context.Context, channelType, target, text string) error {
	ct := ChannelType(strings.ToLower(strings.TrimSpace(channelType)))
	m.adapterMu.RLock()
	sender := m.senders[ct]
	m.adapterMu.RUnlock()
	if sender == nil {
		return fmt.Errorf("unsupported channel type: %s", channelType)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("target is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("message is required")
	}
	var lastErr error
	for i := 0; i < m.retryMax; i++ {
		err := sender.Send(ctx, OutboundMessage{Target: target, Text: text})
		if err == nil {
			return nil
		}
		lastErr = err
		m.logger.Warn("send outbound retry",
			slog.String("channel", ct.String()),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * m.retryBackoff):
		}
	}
	return fmt.Errorf("send outbound failed after retries: %w", lastErr)
}

// Typing shows a typing indicator when the transport supports it.
func (m *Manager) Typing(ctx context.Context, channelType ChannelType, target string) {
	m.adapterMu.RLock()
	adapter := m.adapters[channelType]
	m.adapterMu.RUnlock()
	typer, ok := adapter.(TypingNotifier)
	if !ok {
		return
	}
	if err := typer.Typing(ctx, target); err != nil {
		m.logger.Debug("typing indicator failed", slog.String("channel", channelType.String()), slog.Any("error", err))
	}
}

// FileURL resolves a file id on channelType.
func (m *Manager) FileURL(ctx context.Context, channelType ChannelType, fileID string) (string, error) {
	m.adapterMu.RLock()
	adapter := m.adapters[channelType]
	m.adapterMu.RUnlock()
	resolver, ok := adapter.(FileResolver)
	if !ok {
		return "", fmt.Errorf("channel %s cannot resolve files", channelType)
	}
	return resolver.FileURL(ctx, fileID)
}
