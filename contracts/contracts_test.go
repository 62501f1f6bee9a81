package contracts

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageBin(t *testing.T) {
	t.Run("creates bin with name", func(t *testing.T) {
		bin, err := NewMessageBin("orders")

		assert.NoError(t, err)
		assert.Equal(t, "orders", bin.Name())
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewMessageBin("")

		assert.Error(t, err)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})
}

func TestIncomingEnvelopeContext(t *testing.T) {
	firstReceived := time.Now()
	env := &IncomingEnvelope{
		MessageID:     "m-1",
		Receipt:       "r-1",
		ReadCount:     3,
		FirstReceived: firstReceived,
		RawMessage:    `{"n":1}`,
	}

	mctx := env.Context()

	assert.Equal(t, "m-1", mctx.MessageID)
	assert.Equal(t, 3, mctx.ReadCount)
	assert.Equal(t, firstReceived, mctx.FirstReceived)
	assert.Equal(t, `{"n":1}`, mctx.RawMessage)
}

func TestMessageResponseString(t *testing.T) {
	assert.Equal(t, "consume", Consume.String())
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "terminate", Terminate.String())
	assert.Equal(t, "unknown", MessageResponse(42).String())
}

func TestErrors(t *testing.T) {
	t.Run("serialization error unwraps", func(t *testing.T) {
		cause := fmt.Errorf("bad json")
		err := NewSerializationError(cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "serialization")
	})

	t.Run("broker error carries operation", func(t *testing.T) {
		cause := fmt.Errorf("timeout")
		err := NewBrokerError("receive", cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "receive")
	})
}
