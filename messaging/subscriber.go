package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/queuebacca/queuebacca-go/contracts"
	"github.com/queuebacca/queuebacca-go/serialization"
)

// defaultDrainGrace bounds how long a cancelled subscription waits for its
// in-flight messages before being considered terminated anyway.
const defaultDrainGrace = 30 * time.Second

// Subscriber starts and tracks subscription workers over a shared broker
// client. All subscriptions share one visibility refresher.
type Subscriber struct {
	client     Client
	serializer serialization.Serializer
	refresher  *visibilityRefresher
	logger     *slog.Logger
	drainGrace time.Duration

	mu      sync.Mutex
	workers map[*Subscription]*subscriptionWorker
}

// SubscriberOption configures the Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithSubscriberSerializer sets the serializer used to decode message
// bodies. Default: JSON.
func WithSubscriberSerializer(serializer serialization.Serializer) SubscriberOption {
	return func(s *Subscriber) {
		s.serializer = serializer
	}
}

// WithDrainGrace bounds the wait for in-flight messages on cancellation.
func WithDrainGrace(grace time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.drainGrace = grace
	}
}

// NewSubscriber creates a Subscriber over the given broker client.
func NewSubscriber(client Client, options ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:     client,
		serializer: serialization.NewJSONSerializer(),
		logger:     slog.Default(),
		drainGrace: defaultDrainGrace,
		workers:    make(map[*Subscription]*subscriptionWorker),
	}

	for _, opt := range options {
		opt(s)
	}

	s.refresher = newVisibilityRefresher(client, s.logger)
	return s
}

// Subscribe starts a worker for the subscription. Subscribing the same
// Subscription twice is a configuration error.
func (s *Subscriber) Subscribe(sub *Subscription) error {
	if sub == nil {
		return contracts.NewConfigurationError("subscription cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workers[sub]; exists {
		return contracts.NewConfigurationError("already subscribed to %s", sub.bin)
	}

	worker, err := newSubscriptionWorker(sub, s.client, s.serializer, s.refresher, s.logger, s.drainGrace)
	if err != nil {
		return err
	}
	if err := worker.start(); err != nil {
		return err
	}

	s.workers[sub] = worker
	return nil
}

// Cancel stops the worker for one subscription and waits for it to
// terminate.
func (s *Subscriber) Cancel(sub *Subscription) error {
	s.mu.Lock()
	worker, exists := s.workers[sub]
	if exists {
		delete(s.workers, sub)
	}
	s.mu.Unlock()

	if !exists {
		return contracts.NewConfigurationError("not subscribed to %s", sub.bin)
	}

	worker.Cancel()
	<-worker.Done()
	return nil
}

// CancelAll stops every registered worker and waits for each to terminate.
func (s *Subscriber) CancelAll() {
	s.mu.Lock()
	workers := lo.Values(s.workers)
	s.workers = make(map[*Subscription]*subscriptionWorker)
	s.mu.Unlock()

	for _, worker := range workers {
		worker.Cancel()
	}
	for _, worker := range workers {
		<-worker.Done()
	}

	s.logger.Info("cancelled all subscriptions", "count", len(workers))
}

// ActiveSubscriptions reports how many subscriptions are currently
// registered.
func (s *Subscriber) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
