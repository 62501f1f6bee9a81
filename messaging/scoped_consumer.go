package messaging

import (
	"context"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// MessageScope is a pre-processor wrapped around a terminal consumer. A
// scope may perform work before and after the rest of the chain by calling
// chain.Next(). Returning without calling Next() short-circuits the chain:
// the message is treated as successfully consumed and the terminal consumer
// never runs.
type MessageScope interface {
	Wrap(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error
}

// ScopeFunc is a function adapter for MessageScope.
type ScopeFunc func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error

// Wrap implements MessageScope.
func (f ScopeFunc) Wrap(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
	return f(ctx, msg, mctx, chain)
}

// ScopeChain continues a scope chain. Next invokes the following scope, or
// the terminal consumer once all scopes have run. The chain is single-use:
// calls beyond the first from the same scope are no-ops.
type ScopeChain interface {
	Next() error
}

// ScopedMessageConsumer decorates a terminal MessageConsumer with an ordered,
// non-empty chain of MessageScopes.
type ScopedMessageConsumer struct {
	consumer MessageConsumer
	scopes   []MessageScope
}

// NewScopedMessageConsumer creates a ScopedMessageConsumer. At least one
// scope is required.
func NewScopedMessageConsumer(consumer MessageConsumer, scope MessageScope, scopes ...MessageScope) (*ScopedMessageConsumer, error) {
	if consumer == nil {
		return nil, contracts.NewConfigurationError("scoped consumer requires a terminal consumer")
	}
	if scope == nil {
		return nil, contracts.NewConfigurationError("scoped consumer requires at least one scope")
	}

	all := append([]MessageScope{scope}, scopes...)
	for _, s := range all {
		if s == nil {
			return nil, contracts.NewConfigurationError("scoped consumer scopes cannot be nil")
		}
	}

	return &ScopedMessageConsumer{consumer: consumer, scopes: all}, nil
}

// Consume implements MessageConsumer by running the scope chain. If a scope
// short-circuits, the response is Consume; otherwise the terminal consumer's
// response is returned. Scope errors propagate as consumer failures.
func (s *ScopedMessageConsumer) Consume(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error) {
	chain := &scopeChain{
		scopes:   s.scopes,
		consumer: s.consumer,
		ctx:      ctx,
		msg:      msg,
		mctx:     mctx,
		response: contracts.Consume,
	}

	if err := chain.Next(); err != nil {
		return contracts.Retry, err
	}
	return chain.response, nil
}

// scopeChain is a cursor over the scope list. pos counts dispatched links;
// once any dispatched link returns, the chain is closed and further Next
// calls do nothing.
type scopeChain struct {
	scopes   []MessageScope
	consumer MessageConsumer
	pos      int
	ctx      context.Context
	msg      interface{}
	mctx     *contracts.MessageContext
	response contracts.MessageResponse
}

// Next implements ScopeChain.
func (c *scopeChain) Next() error {
	if c.pos > len(c.scopes) {
		return nil
	}

	i := c.pos
	c.pos++
	// The link that called Next has had its one advance; a later call from it
	// must not dispatch a link an inner scope chose to skip.
	defer func() { c.pos = len(c.scopes) + 1 }()

	if i < len(c.scopes) {
		return c.scopes[i].Wrap(c.ctx, c.msg, c.mctx, c)
	}

	response, err := c.consumer.Consume(c.ctx, c.msg, c.mctx)
	if err != nil {
		return err
	}
	c.response = response
	return nil
}
