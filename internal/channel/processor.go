package channel

import "context"

// Outbound is what a processor may do on the transports while handling a batch.
type Outbound interface {
	SendText(ctx context.Context, channelType, target, text string) error
	Typing(ctx context.Context, channelType ChannelType, target string)
	FileURL(ctx context.Context, channelType ChannelType, fileID string) (string, error)
}

// InboundProcessor handles a batch of inbound events and replies through out.
type InboundProcessor interface {
	HandleBatch(ctx context.Context, events []InboundEvent, out Outbound) error
}
