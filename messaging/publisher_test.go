package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuebacca/queuebacca-go/contracts"
)

func TestPublisher(t *testing.T) {
	bin, err := contracts.NewMessageBin("orders")
	require.NoError(t, err)

	t.Run("publishes a single message", func(t *testing.T) {
		client := newMemClient(time.Minute)
		publisher := NewPublisher(client)

		env, err := publisher.Publish(context.Background(), bin, job{N: 7})

		require.NoError(t, err)
		assert.NotEmpty(t, env.MessageID)
		assert.JSONEq(t, `{"n":7}`, env.RawMessage)
	})

	t.Run("publishes a batch", func(t *testing.T) {
		client := newMemClient(time.Minute)
		publisher := NewPublisher(client)

		msgs := []interface{}{job{N: 1}, job{N: 2}, job{N: 3}}
		envs, err := publisher.PublishAll(context.Background(), bin, msgs)

		require.NoError(t, err)
		require.Len(t, envs, 3)
		ids := map[string]bool{}
		for _, env := range envs {
			ids[env.MessageID] = true
		}
		assert.Len(t, ids, 3)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		client := newMemClient(time.Minute)
		publisher := NewPublisher(client)

		envs, err := publisher.PublishAll(context.Background(), bin, nil)

		require.NoError(t, err)
		assert.Empty(t, envs)
	})

	t.Run("rejects nil messages", func(t *testing.T) {
		client := newMemClient(time.Minute)
		publisher := NewPublisher(client)

		_, err := publisher.Publish(context.Background(), bin, nil)
		assert.Error(t, err)

		_, err = publisher.PublishAll(context.Background(), bin, []interface{}{job{}, nil})
		assert.Error(t, err)
	})

	t.Run("delay option is accepted", func(t *testing.T) {
		client := newMemClient(time.Minute)
		publisher := NewPublisher(client)

		_, err := publisher.Publish(context.Background(), bin, job{N: 1}, WithDelay(30*time.Second))
		require.NoError(t, err)
	})
}
