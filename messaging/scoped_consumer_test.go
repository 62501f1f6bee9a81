package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuebacca/queuebacca-go/contracts"
)

func terminalConsumer(invoked *bool, response contracts.MessageResponse) MessageConsumer {
	return ConsumerFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error) {
		*invoked = true
		return response, nil
	})
}

func TestNewScopedMessageConsumer(t *testing.T) {
	passthrough := ScopeFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
		return chain.Next()
	})

	t.Run("requires a terminal consumer", func(t *testing.T) {
		_, err := NewScopedMessageConsumer(nil, passthrough)
		assert.Error(t, err)
	})

	t.Run("requires at least one scope", func(t *testing.T) {
		var invoked bool
		_, err := NewScopedMessageConsumer(terminalConsumer(&invoked, contracts.Consume), nil)
		assert.Error(t, err)
	})
}

func TestScopedMessageConsumer(t *testing.T) {
	t.Run("scopes run in order around the terminal consumer", func(t *testing.T) {
		var trace []string
		scope := func(name string) MessageScope {
			return ScopeFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
				trace = append(trace, name+"-before")
				err := chain.Next()
				trace = append(trace, name+"-after")
				return err
			})
		}
		terminal := ConsumerFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error) {
			trace = append(trace, "consume")
			return contracts.Consume, nil
		})

		scoped, err := NewScopedMessageConsumer(terminal, scope("outer"), scope("inner"))
		require.NoError(t, err)

		response, err := scoped.Consume(context.Background(), "msg", testMessageContext())

		require.NoError(t, err)
		assert.Equal(t, contracts.Consume, response)
		assert.Equal(t, []string{"outer-before", "inner-before", "consume", "inner-after", "outer-after"}, trace)
	})

	t.Run("short-circuit skips the terminal consumer and consumes", func(t *testing.T) {
		var invoked bool
		silent := ScopeFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
			return nil // never calls Next
		})

		scoped, err := NewScopedMessageConsumer(terminalConsumer(&invoked, contracts.Retry), silent)
		require.NoError(t, err)

		response, err := scoped.Consume(context.Background(), "msg", testMessageContext())

		require.NoError(t, err)
		assert.False(t, invoked)
		assert.Equal(t, contracts.Consume, response)
	})

	t.Run("repeated Next calls do not re-run the chain", func(t *testing.T) {
		consumed := 0
		greedy := ScopeFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
			if err := chain.Next(); err != nil {
				return err
			}
			return chain.Next() // no-op
		})
		terminal := ConsumerFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error) {
			consumed++
			return contracts.Consume, nil
		})

		scoped, err := NewScopedMessageConsumer(terminal, greedy)
		require.NoError(t, err)

		_, err = scoped.Consume(context.Background(), "msg", testMessageContext())

		require.NoError(t, err)
		assert.Equal(t, 1, consumed)
	})

	t.Run("scope errors propagate as consumer failures", func(t *testing.T) {
		boom := errors.New("scope failed")
		failing := ScopeFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
			return boom
		})
		var invoked bool

		scoped, err := NewScopedMessageConsumer(terminalConsumer(&invoked, contracts.Consume), failing)
		require.NoError(t, err)

		_, err = scoped.Consume(context.Background(), "msg", testMessageContext())

		assert.ErrorIs(t, err, boom)
		assert.False(t, invoked)
	})

	t.Run("terminal response flows back through scopes", func(t *testing.T) {
		passthrough := ScopeFunc(func(ctx context.Context, msg interface{}, mctx *contracts.MessageContext, chain ScopeChain) error {
			return chain.Next()
		})
		var invoked bool

		scoped, err := NewScopedMessageConsumer(terminalConsumer(&invoked, contracts.Terminate), passthrough)
		require.NoError(t, err)

		response, err := scoped.Consume(context.Background(), "msg", testMessageContext())

		require.NoError(t, err)
		assert.True(t, invoked)
		assert.Equal(t, contracts.Terminate, response)
	})
}
