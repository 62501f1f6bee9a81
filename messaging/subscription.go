package messaging

import (
	"reflect"
	"time"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// Finalizer is an optional hook invoked after a message's disposition has
// been applied.
type Finalizer func(env *contracts.IncomingEnvelope, response contracts.MessageResponse)

// Subscription is the immutable pairing of a bin, a message type, and a
// consumer, plus the knobs governing how its worker runs. Create one with
// NewSubscription; the zero value is not usable.
type Subscription struct {
	bin         contracts.MessageBin
	messageType reflect.Type
	consumer    MessageConsumer

	capacity   int
	resolver   *ExceptionResolver
	retryDelay RetryDelayGenerator
	finalizer  Finalizer
	timing     contracts.TimingListener
}

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// WithMessageCapacity caps how many messages may be in flight at once.
// Default 1.
func WithMessageCapacity(capacity int) SubscriptionOption {
	return func(s *Subscription) {
		s.capacity = capacity
	}
}

// WithExceptionResolver sets the resolver mapping consumer failures to
// dispositions. Default: an empty resolver, so every failure retries.
func WithExceptionResolver(resolver *ExceptionResolver) SubscriptionOption {
	return func(s *Subscription) {
		s.resolver = resolver
	}
}

// WithRetryDelayGenerator sets the generator for retry delays. Default:
// constant 5 seconds.
func WithRetryDelayGenerator(gen RetryDelayGenerator) SubscriptionOption {
	return func(s *Subscription) {
		s.retryDelay = gen
	}
}

// WithFinalizer sets a hook invoked after each disposition.
func WithFinalizer(finalizer Finalizer) SubscriptionOption {
	return func(s *Subscription) {
		s.finalizer = finalizer
	}
}

// WithTimingListener sets a listener receiving a TimingEvent per consume
// attempt.
func WithTimingListener(listener contracts.TimingListener) SubscriptionOption {
	return func(s *Subscription) {
		s.timing = listener
	}
}

// NewSubscription creates a Subscription for the given bin. prototype fixes
// the concrete type message bodies decode into; pass an instance such as
// OrderPlaced{} or &OrderPlaced{}.
func NewSubscription(bin contracts.MessageBin, prototype interface{}, consumer MessageConsumer, options ...SubscriptionOption) (*Subscription, error) {
	if bin.Name() == "" {
		return nil, contracts.NewConfigurationError("subscription requires a named bin")
	}
	if prototype == nil {
		return nil, contracts.NewConfigurationError("subscription requires a message prototype")
	}
	if consumer == nil {
		return nil, contracts.NewConfigurationError("subscription requires a consumer")
	}

	messageType := reflect.TypeOf(prototype)
	if messageType.Kind() == reflect.Ptr {
		messageType = messageType.Elem()
	}

	s := &Subscription{
		bin:         bin,
		messageType: messageType,
		consumer:    consumer,
		capacity:    1,
		resolver:    NewExceptionResolver(),
		retryDelay:  NewConstantRetryDelay(5 * time.Second),
	}

	for _, opt := range options {
		opt(s)
	}

	if s.capacity <= 0 {
		return nil, contracts.NewConfigurationError("message capacity must be positive, got %d", s.capacity)
	}
	if s.resolver == nil {
		return nil, contracts.NewConfigurationError("exception resolver cannot be nil")
	}
	if s.retryDelay == nil {
		return nil, contracts.NewConfigurationError("retry delay generator cannot be nil")
	}

	return s, nil
}

// Bin returns the subscription's bin.
func (s *Subscription) Bin() contracts.MessageBin {
	return s.bin
}

// MessageCapacity returns the in-flight cap.
func (s *Subscription) MessageCapacity() int {
	return s.capacity
}

// newMessage allocates a fresh instance of the subscription's message type,
// returned as a pointer for decoding.
func (s *Subscription) newMessage() interface{} {
	return reflect.New(s.messageType).Interface()
}
