// Package messaging implements the Queuebacca subscription engine and its
// supporting contracts.
//
// The central piece is the subscription worker: for each Subscription it
// continuously pulls batches from a bin, admits messages under the
// subscription's in-flight cap, dispatches each to its consumer on a bounded
// pool, keeps the broker-side visibility lease alive while work runs, and
// applies a disposition (consume, retry with a generated delay, or
// terminate) from the consumer's result or from the exception resolver.
//
// Components:
//   - Client: the abstract broker contract (implemented under transports/)
//   - Publisher / Subscriber: the application-facing entry points
//   - MessageConsumer and adapters: ScopedMessageConsumer (chain of
//     pre-processing scopes) and RoutingMessageConsumer (type-based routing)
//   - ExceptionResolver: ordered error-to-disposition mapping
//   - RetryDelayGenerator: constant and capped-exponential retry delays
//
// Example usage:
//
//	bin, _ := contracts.NewMessageBin("orders")
//	sub, _ := messaging.NewSubscription(bin, OrderPlaced{}, consumer,
//		messaging.WithMessageCapacity(10),
//		messaging.WithRetryDelayGenerator(
//			messaging.NewExponentialRetryDelay(5*time.Second, 2, 5*time.Minute)),
//	)
//
//	subscriber := messaging.NewSubscriber(client)
//	if err := subscriber.Subscribe(sub); err != nil {
//		return err
//	}
//	defer subscriber.CancelAll()
//
// Delivery is at-least-once, exactly as the broker provides it; the engine
// holds no durable state of its own.
package messaging
