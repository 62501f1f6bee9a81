package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/queuebacca/queuebacca-go/contracts"
	"github.com/queuebacca/queuebacca-go/internal/workpool"
	"github.com/queuebacca/queuebacca-go/serialization"
)

// Subscription worker states.
const (
	stateBuilt int32 = iota
	stateRunning
	stateCancelling
	stateTerminated
)

// retrieveBackoff spaces out pulls after a broker failure so a broken bin
// does not spin the loop.
const retrieveBackoff = time.Second

// subscriptionWorker runs the pull/dispatch loop for one Subscription. A
// dedicated goroutine pulls batches; consumption runs on a pool bounded by
// the subscription's message capacity, admission-controlled by a permit
// semaphore holding the same count.
type subscriptionWorker struct {
	sub        *Subscription
	client     Client
	serializer serialization.Serializer
	refresher  *visibilityRefresher
	pool       *workpool.Pool
	permits    *semaphore.Weighted
	logger     *slog.Logger
	drainGrace time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}
}

func newSubscriptionWorker(
	sub *Subscription,
	client Client,
	serializer serialization.Serializer,
	refresher *visibilityRefresher,
	logger *slog.Logger,
	drainGrace time.Duration,
) (*subscriptionWorker, error) {
	pool, err := workpool.New(sub.capacity)
	if err != nil {
		return nil, contracts.NewConfigurationError("invalid message capacity: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &subscriptionWorker{
		sub:        sub,
		client:     client,
		serializer: serializer,
		refresher:  refresher,
		pool:       pool,
		permits:    semaphore.NewWeighted(int64(sub.capacity)),
		logger:     logger.With("bin", sub.bin.Name()),
		drainGrace: drainGrace,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// start transitions Built -> Running and launches the pull loop.
func (w *subscriptionWorker) start() error {
	if !w.state.CompareAndSwap(stateBuilt, stateRunning) {
		return contracts.NewConfigurationError("subscription for %s already started", w.sub.bin)
	}

	go w.run()
	w.logger.Info("subscription started", "capacity", w.sub.capacity)
	return nil
}

// Cancel stops the pull loop. In-flight messages run to completion; the
// worker is terminated once the pool drains or the drain grace period
// elapses, whichever comes first.
func (w *subscriptionWorker) Cancel() {
	if !w.state.CompareAndSwap(stateRunning, stateCancelling) {
		return
	}
	w.logger.Info("subscription cancelling")
	w.cancel()
}

// Done is closed once the worker has terminated: its pool has drained, or
// the drain grace period has elapsed with tasks still running.
func (w *subscriptionWorker) Done() <-chan struct{} {
	return w.done
}

func (w *subscriptionWorker) run() {
	defer w.terminate()

	for {
		if w.ctx.Err() != nil {
			return
		}

		// Admission before pulling: don't ask the broker for work while the
		// subscription is saturated.
		if err := w.permits.Acquire(w.ctx, 1); err != nil {
			return
		}
		w.permits.Release(1)

		envelopes, err := w.client.RetrieveMessages(w.ctx, w.sub.bin, w.sub.capacity)
		if err != nil {
			if isCancellation(err) {
				return
			}
			w.logger.Error("failed to retrieve messages", "error", err)
			select {
			case <-time.After(retrieveBackoff):
			case <-w.ctx.Done():
				return
			}
			continue
		}

		for _, env := range envelopes {
			if err := w.permits.Acquire(w.ctx, 1); err != nil {
				// Cancelled mid-batch: the remaining envelopes are abandoned
				// with no refresh and no disposition; their visibility
				// timeout returns them to the bin.
				return
			}

			w.refresher.ScheduleRefresh(w.sub.bin, env, w.client.VisibilityTimeout(w.sub.bin))

			env := env
			w.pool.Submit(func() {
				w.handle(env)
			})
		}
	}
}

func (w *subscriptionWorker) terminate() {
	w.state.Store(stateCancelling)
	if !w.pool.Drain(w.drainGrace) {
		w.logger.Warn("subscription pool did not drain within grace period", "grace", w.drainGrace)
	}
	w.state.Store(stateTerminated)
	w.logger.Info("subscription terminated")
	close(w.done)
}

// handle processes one admitted envelope. Whatever happens, the refresh is
// cancelled exactly once before disposition and exactly one permit is
// released.
func (w *subscriptionWorker) handle(env *contracts.IncomingEnvelope) {
	defer w.permits.Release(1)
	// CancelRefresh is idempotent; this covers a panic before the call below.
	defer w.refresher.CancelRefresh(env)

	start := time.Now()
	mctx := env.Context()

	response := w.consume(env, mctx)

	w.refresher.CancelRefresh(env)
	w.applyDisposition(env, response)

	if w.sub.timing != nil {
		w.sub.timing.OnTiming(contracts.TimingEvent{
			Bin:         w.sub.bin,
			MessageType: w.sub.messageType.Name(),
			MessageID:   env.MessageID,
			Timestamp:   start,
			Duration:    time.Since(start),
			Response:    response,
		})
	}
	if w.sub.finalizer != nil {
		w.sub.finalizer(env, response)
	}
}

// consume decodes the envelope and invokes the consumer, converting raised
// errors (and panics) into a disposition via the exception resolver. It
// never returns an error: resolution failure is a logged Retry.
func (w *subscriptionWorker) consume(env *contracts.IncomingEnvelope, mctx *contracts.MessageContext) contracts.MessageResponse {
	if env.Message == nil {
		msg := w.sub.newMessage()
		if err := w.serializer.FromString(env.RawMessage, msg); err != nil {
			w.logger.Warn("failed to decode message",
				"messageId", env.MessageID,
				"error", err,
			)
			return w.sub.resolver.Resolve(err, mctx)
		}
		env.Message = msg
	}

	response, err := w.safeConsume(env.Message, mctx)
	if err != nil {
		return w.sub.resolver.Resolve(err, mctx)
	}
	return response
}

// safeConsume shields the worker from panicking consumer code.
func (w *subscriptionWorker) safeConsume(msg interface{}, mctx *contracts.MessageContext) (response contracts.MessageResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()
	return w.sub.consumer.Consume(w.ctx, msg, mctx)
}

// applyDisposition issues the broker call for the chosen response. Broker
// failures are logged, not retried; the visibility timeout is the safety
// net.
func (w *subscriptionWorker) applyDisposition(env *contracts.IncomingEnvelope, response contracts.MessageResponse) {
	// Disposition must complete even while the subscription is cancelling.
	ctx := context.Background()

	switch response {
	case contracts.Consume:
		if err := w.client.DisposeMessage(ctx, w.sub.bin, env); err != nil {
			w.logger.Error("failed to dispose message",
				"messageId", env.MessageID,
				"error", err,
			)
		}
	case contracts.Retry:
		delay := clampReturnDelay(w.sub.retryDelay.NextDelay(env.ReadCount))
		if err := w.client.ReturnMessage(ctx, w.sub.bin, env, delay); err != nil {
			w.logger.Error("failed to return message",
				"messageId", env.MessageID,
				"delay", delay,
				"error", err,
			)
		}
	case contracts.Terminate:
		// No broker call: the visibility timeout expires naturally and the
		// broker's dead-letter policy takes over.
		w.logger.Warn("message terminated", "messageId", env.MessageID, "readCount", env.ReadCount)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, contracts.ErrCancelled) || errors.Is(err, context.Canceled)
}
