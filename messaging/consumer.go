package messaging

import (
	"context"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// MessageConsumer processes a single message delivery. The returned
// MessageResponse is the disposition applied to the message; returning an
// error routes the failure through the subscription's exception resolver
// instead.
type MessageConsumer interface {
	Consume(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error)
}

// ConsumerFunc is a function adapter for MessageConsumer.
type ConsumerFunc func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error)

// Consume implements MessageConsumer.
func (f ConsumerFunc) Consume(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error) {
	return f(ctx, msg, mctx)
}
