// Package queuebacca is a client library between application code and a
// remote message-queue broker with visibility-timeout semantics. It
// publishes typed messages into named bins and runs long-lived subscription
// workers that pull, dispatch, retry, and acknowledge messages with bounded
// concurrency.
package queuebacca

import (
	"log/slog"

	"github.com/queuebacca/queuebacca-go/messaging"
	"github.com/queuebacca/queuebacca-go/serialization"
)

// Client is the main entry point, wiring a broker transport into a
// Publisher and a Subscriber.
type Client struct {
	transport  messaging.Client
	publisher  *messaging.Publisher
	subscriber *messaging.Subscriber
}

type clientConfig struct {
	logger     *slog.Logger
	serializer serialization.Serializer
}

// ClientOption configures the Client.
type ClientOption func(*clientConfig)

// WithLogger sets the logger shared by the publisher and subscriber.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithSerializer sets the serializer used to decode subscription messages.
func WithSerializer(serializer serialization.Serializer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.serializer = serializer
	}
}

// NewClient creates a Client over the given transport (see transports/sqs
// and transports/redisq).
func NewClient(transport messaging.Client, options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger:     slog.Default(),
		serializer: serialization.NewJSONSerializer(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	return &Client{
		transport: transport,
		publisher: messaging.NewPublisher(transport,
			messaging.WithPublisherLogger(cfg.logger),
		),
		subscriber: messaging.NewSubscriber(transport,
			messaging.WithSubscriberLogger(cfg.logger),
			messaging.WithSubscriberSerializer(cfg.serializer),
		),
	}
}

// Publisher returns the message publisher.
func (c *Client) Publisher() *messaging.Publisher {
	return c.publisher
}

// Subscriber returns the message subscriber.
func (c *Client) Subscriber() *messaging.Subscriber {
	return c.subscriber
}

// Transport returns the underlying broker client.
func (c *Client) Transport() messaging.Client {
	return c.transport
}
