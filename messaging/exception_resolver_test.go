package messaging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/queuebacca/queuebacca-go/contracts"
)

type poisonError struct {
	reason string
}

func (e *poisonError) Error() string {
	return "poison: " + e.reason
}

func testMessageContext() *contracts.MessageContext {
	return &contracts.MessageContext{MessageID: "m-1", ReadCount: 1}
}

func TestExceptionResolver(t *testing.T) {
	t.Run("empty resolver retries everything", func(t *testing.T) {
		resolver := NewExceptionResolver()

		response := resolver.Resolve(errors.New("boom"), testMessageContext())

		assert.Equal(t, contracts.Retry, response)
	})

	t.Run("HandleIs matches sentinel errors", func(t *testing.T) {
		sentinel := errors.New("queue full")
		resolver := NewExceptionResolver().
			HandleIs(sentinel, func(err error, mctx *contracts.MessageContext) contracts.MessageResponse {
				return contracts.Consume
			})

		assert.Equal(t, contracts.Consume, resolver.Resolve(sentinel, testMessageContext()))
		assert.Equal(t, contracts.Consume, resolver.Resolve(fmt.Errorf("wrapped: %w", sentinel), testMessageContext()))
		assert.Equal(t, contracts.Retry, resolver.Resolve(errors.New("other"), testMessageContext()))
	})

	t.Run("HandleAs matches error types including wrapped", func(t *testing.T) {
		resolver := NewExceptionResolver().
			HandleAs(&poisonError{}, func(err error, mctx *contracts.MessageContext) contracts.MessageResponse {
				return contracts.Terminate
			})

		assert.Equal(t, contracts.Terminate, resolver.Resolve(&poisonError{reason: "bad payload"}, testMessageContext()))
		assert.Equal(t, contracts.Terminate, resolver.Resolve(fmt.Errorf("consume failed: %w", &poisonError{}), testMessageContext()))
		assert.Equal(t, contracts.Retry, resolver.Resolve(errors.New("unrelated"), testMessageContext()))
	})

	t.Run("first matching registration wins", func(t *testing.T) {
		resolver := NewExceptionResolver().
			HandleAs(&poisonError{}, func(err error, mctx *contracts.MessageContext) contracts.MessageResponse {
				return contracts.Terminate
			}).
			HandleMatch(func(err error) bool { return true }, func(err error, mctx *contracts.MessageContext) contracts.MessageResponse {
				return contracts.Consume
			})

		assert.Equal(t, contracts.Terminate, resolver.Resolve(&poisonError{}, testMessageContext()))
		assert.Equal(t, contracts.Consume, resolver.Resolve(errors.New("anything else"), testMessageContext()))
	})

	t.Run("handler receives the error and context", func(t *testing.T) {
		var seenErr error
		var seenID string
		resolver := NewExceptionResolver().
			HandleMatch(func(err error) bool { return true }, func(err error, mctx *contracts.MessageContext) contracts.MessageResponse {
				seenErr = err
				seenID = mctx.MessageID
				return contracts.Retry
			})

		boom := errors.New("boom")
		resolver.Resolve(boom, testMessageContext())

		assert.Equal(t, boom, seenErr)
		assert.Equal(t, "m-1", seenID)
	})
}
