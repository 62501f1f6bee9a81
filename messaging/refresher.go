package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// visibilityRefresher keeps in-flight messages invisible to other consumers
// by periodically extending their broker lease until a disposition is
// applied. One refresher is shared by every subscription of a Subscriber;
// each in-flight envelope owns exactly one scheduled timer at a time.
type visibilityRefresher struct {
	client Client
	logger *slog.Logger

	mu     sync.Mutex
	timers map[*contracts.IncomingEnvelope]*time.Timer
}

func newVisibilityRefresher(client Client, logger *slog.Logger) *visibilityRefresher {
	return &visibilityRefresher{
		client: client,
		logger: logger,
		timers: make(map[*contracts.IncomingEnvelope]*time.Timer),
	}
}

// refreshDelay derives how long to wait before extending a lease: half the
// visibility timeout for short timeouts, one minute before expiry otherwise.
func refreshDelay(visibilityTimeout time.Duration) time.Duration {
	if visibilityTimeout < 2*time.Minute {
		return visibilityTimeout / 2
	}
	return visibilityTimeout - time.Minute
}

// ScheduleRefresh arms the refresh cycle for env. Each firing extends the
// lease by visibilityTimeout and re-arms itself until CancelRefresh.
func (r *visibilityRefresher) ScheduleRefresh(bin contracts.MessageBin, env *contracts.IncomingEnvelope, visibilityTimeout time.Duration) {
	r.schedule(bin, env, visibilityTimeout)
}

// CancelRefresh stops the refresh cycle for env. Safe to call concurrently
// with a firing timer; an extend already in flight is harmless.
func (r *visibilityRefresher) CancelRefresh(env *contracts.IncomingEnvelope) {
	r.mu.Lock()
	timer, ok := r.timers[env]
	if ok {
		delete(r.timers, env)
	}
	r.mu.Unlock()

	if ok {
		timer.Stop()
	}
}

func (r *visibilityRefresher) schedule(bin contracts.MessageBin, env *contracts.IncomingEnvelope, visibilityTimeout time.Duration) {
	timer := time.AfterFunc(refreshDelay(visibilityTimeout), func() {
		r.refresh(bin, env, visibilityTimeout)
	})

	r.mu.Lock()
	r.timers[env] = timer
	r.mu.Unlock()
}

func (r *visibilityRefresher) refresh(bin contracts.MessageBin, env *contracts.IncomingEnvelope, visibilityTimeout time.Duration) {
	r.mu.Lock()
	_, active := r.timers[env]
	r.mu.Unlock()
	if !active {
		return
	}

	r.logger.Debug("refreshing message visibility",
		"bin", bin.Name(),
		"messageId", env.MessageID,
		"timeout", visibilityTimeout,
	)

	if err := r.client.ExtendVisibility(context.Background(), bin, env.Receipt, visibilityTimeout); err != nil {
		// The broker's at-least-once semantics cover a lapsed lease; the
		// message may simply be redelivered elsewhere.
		r.logger.Error("failed to extend message visibility",
			"bin", bin.Name(),
			"messageId", env.MessageID,
			"error", err,
		)
	}

	r.mu.Lock()
	if _, active := r.timers[env]; !active {
		r.mu.Unlock()
		return
	}
	timer := time.AfterFunc(refreshDelay(visibilityTimeout), func() {
		r.refresh(bin, env, visibilityTimeout)
	})
	r.timers[env] = timer
	r.mu.Unlock()
}

// activeCount reports how many envelopes currently have a scheduled refresh.
func (r *visibilityRefresher) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
