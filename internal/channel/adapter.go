package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrStopNotSupported = errors.New("channel connection stop not supported")

// InboundHandler receives the events of one pull cycle (or one push delivery).
type InboundHandler func(ctx context.Context, events []InboundEvent) error

type Adapter interface {
	Type() ChannelType
}

type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

type Receiver interface {
	Connect(ctx context.Context, handler InboundHandler) (Connection, error)
}

// TypingNotifier shows a typing indicator to target.
type TypingNotifier interface {
	Typing(ctx context.Context, target string) error
}

// FileResolver turns a transport file id into a downloadable URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

type Connection interface {
	ChannelType() ChannelType
	Stop(ctx context.Context) error
	Running() bool
}

type BaseConnection struct {
	channelType ChannelType
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

func NewConnection(channelType ChannelType, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		channelType: channelType,
		stop:        stop,
	}
	conn.running.Store(true)
	return conn
}

func (c *BaseConnection) ChannelType() ChannelType {
	return c.channelType
}

func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	err := c.stop(ctx)
	if err == nil {
		c.running.Store(false)
	}
	return err
}

func (c *BaseConnection) Running() bool {
	return c.running.Load()
}
