package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queuebacca/queuebacca-go/contracts"
	"github.com/queuebacca/queuebacca-go/serialization"
)

// memClient is an in-memory broker with just enough visibility semantics for
// engine tests: retrieved messages leave the ready list and only reappear
// when returned. Broker calls are recorded for assertions.
type memClient struct {
	serializer serialization.Serializer
	visibility time.Duration

	mu       sync.Mutex
	messages map[string]*memMessage
	ready    []string

	disposed   []string
	returns    []memReturn
	extends    []string
	deliveries map[string]int
}

type memMessage struct {
	id            string
	body          string
	readCount     int
	firstReceived time.Time
}

type memReturn struct {
	messageID string
	delay     time.Duration
}

func newMemClient(visibility time.Duration) *memClient {
	return &memClient{
		serializer: serialization.NewJSONSerializer(),
		visibility: visibility,
		messages:   make(map[string]*memMessage),
		deliveries: make(map[string]int),
	}
}

func (c *memClient) SendMessage(ctx context.Context, bin contracts.MessageBin, message interface{}, delay time.Duration) (*contracts.OutgoingEnvelope, error) {
	body, err := c.serializer.ToString(message)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg := &memMessage{id: uuid.NewString(), body: body}
	c.messages[msg.id] = msg
	c.ready = append(c.ready, msg.id)

	return &contracts.OutgoingEnvelope{MessageID: msg.id, Message: message, RawMessage: body}, nil
}

func (c *memClient) SendMessages(ctx context.Context, bin contracts.MessageBin, messages []interface{}, delay time.Duration) ([]*contracts.OutgoingEnvelope, error) {
	envs := make([]*contracts.OutgoingEnvelope, 0, len(messages))
	for _, message := range messages {
		env, err := c.SendMessage(ctx, bin, message, delay)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func (c *memClient) RetrieveMessages(ctx context.Context, bin contracts.MessageBin, maxMessages int) ([]*contracts.IncomingEnvelope, error) {
	for {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, ctx.Err())
		}

		c.mu.Lock()
		if len(c.ready) > 0 {
			n := maxMessages
			if n > len(c.ready) {
				n = len(c.ready)
			}
			envs := make([]*contracts.IncomingEnvelope, 0, n)
			for _, id := range c.ready[:n] {
				msg := c.messages[id]
				msg.readCount++
				if msg.firstReceived.IsZero() {
					msg.firstReceived = time.Now()
				}
				c.deliveries[id]++
				envs = append(envs, &contracts.IncomingEnvelope{
					MessageID:     msg.id,
					Receipt:       fmt.Sprintf("%s#%d", msg.id, msg.readCount),
					ReadCount:     msg.readCount,
					FirstReceived: msg.firstReceived,
					RawMessage:    msg.body,
				})
			}
			c.ready = c.ready[n:]
			c.mu.Unlock()
			return envs, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, ctx.Err())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (c *memClient) ReturnMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.returns = append(c.returns, memReturn{messageID: env.MessageID, delay: delay})
	// Requeue immediately regardless of delay; tests assert on the recorded
	// delay, not on wall-clock scheduling.
	c.ready = append(c.ready, env.MessageID)
	return nil
}

func (c *memClient) DisposeMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disposed = append(c.disposed, env.MessageID)
	delete(c.messages, env.MessageID)
	return nil
}

func (c *memClient) ExtendVisibility(ctx context.Context, bin contracts.MessageBin, receipt string, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.extends = append(c.extends, receipt)
	return nil
}

func (c *memClient) VisibilityTimeout(bin contracts.MessageBin) time.Duration {
	return c.visibility
}

func (c *memClient) disposedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.disposed)
}

func (c *memClient) returnCalls() []memReturn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]memReturn(nil), c.returns...)
}

func (c *memClient) extendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.extends)
}

func (c *memClient) deliveryCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int, len(c.deliveries))
	for id, n := range c.deliveries {
		counts[id] = n
	}
	return counts
}
