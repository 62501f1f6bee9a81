package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// Publisher sends messages into bins through a broker client.
type Publisher struct {
	client Client
	logger *slog.Logger
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a Publisher over the given broker client.
func NewPublisher(client Client, options ...PublisherOption) *Publisher {
	p := &Publisher{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// PublishOptions configures a publish call.
type PublishOptions struct {
	Delay time.Duration
}

// PublishOption configures publish behavior.
type PublishOption func(*PublishOptions)

// WithDelay delays delivery of the published message.
func WithDelay(delay time.Duration) PublishOption {
	return func(opts *PublishOptions) {
		opts.Delay = delay
	}
}

// Publish sends a single message to the bin.
func (p *Publisher) Publish(ctx context.Context, bin contracts.MessageBin, msg interface{}, options ...PublishOption) (*contracts.OutgoingEnvelope, error) {
	if msg == nil {
		return nil, contracts.NewConfigurationError("cannot publish a nil message")
	}

	opts := PublishOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	env, err := p.client.SendMessage(ctx, bin, msg, opts.Delay)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("published message", "bin", bin.Name(), "messageId", env.MessageID)
	return env, nil
}

// PublishAll sends a batch of messages to the bin, delegating chunking to
// the broker client.
func (p *Publisher) PublishAll(ctx context.Context, bin contracts.MessageBin, msgs []interface{}, options ...PublishOption) ([]*contracts.OutgoingEnvelope, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	for _, msg := range msgs {
		if msg == nil {
			return nil, contracts.NewConfigurationError("cannot publish a nil message")
		}
	}

	opts := PublishOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	envs, err := p.client.SendMessages(ctx, bin, msgs, opts.Delay)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("published message batch", "bin", bin.Name(), "count", len(envs))
	return envs, nil
}
