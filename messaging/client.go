package messaging

import (
	"context"
	"time"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// Client is the broker contract the engine is built against. Implementations
// live under transports/ and must be safe for concurrent use: the puller,
// the consumer goroutines, and the visibility refresher all share one Client.
type Client interface {
	// SendMessage delivers a single message to a bin, returning the envelope
	// the broker accepted. The message becomes deliverable after delay.
	SendMessage(ctx context.Context, bin contracts.MessageBin, message interface{}, delay time.Duration) (*contracts.OutgoingEnvelope, error)

	// SendMessages delivers a batch of messages to a bin. Implementations may
	// chunk the batch to satisfy broker limits.
	SendMessages(ctx context.Context, bin contracts.MessageBin, messages []interface{}, delay time.Duration) ([]*contracts.OutgoingEnvelope, error)

	// RetrieveMessages long-polls the bin for up to the broker's wait ceiling
	// (~20s), returning at most maxMessages envelopes, capped at the broker's
	// per-call limit. Cancelling ctx unblocks the poll with an error matching
	// contracts.ErrCancelled.
	RetrieveMessages(ctx context.Context, bin contracts.MessageBin, maxMessages int) ([]*contracts.IncomingEnvelope, error)

	// ReturnMessage makes a delivered message re-deliverable after delay.
	ReturnMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope, delay time.Duration) error

	// DisposeMessage permanently removes a delivered message.
	DisposeMessage(ctx context.Context, bin contracts.MessageBin, env *contracts.IncomingEnvelope) error

	// ExtendVisibility pushes out the visibility deadline of the delivery
	// identified by receipt.
	ExtendVisibility(ctx context.Context, bin contracts.MessageBin, receipt string, timeout time.Duration) error

	// VisibilityTimeout reports the bin's configured visibility timeout, used
	// to derive the refresh schedule.
	VisibilityTimeout(bin contracts.MessageBin) time.Duration
}
