package sqs

import (
	"sync"
	"time"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// BinRegistry maps message bins to SQS queue URLs and their default
// visibility timeouts.
type BinRegistry struct {
	mu      sync.RWMutex
	entries map[string]binEntry
}

type binEntry struct {
	queueURL          string
	visibilityTimeout time.Duration
}

// NewBinRegistry creates an empty registry.
func NewBinRegistry() *BinRegistry {
	return &BinRegistry{
		entries: make(map[string]binEntry),
	}
}

// Register maps a bin to its queue URL and visibility timeout.
func (r *BinRegistry) Register(bin contracts.MessageBin, queueURL string, visibilityTimeout time.Duration) error {
	if queueURL == "" {
		return contracts.NewConfigurationError("queue URL for %s cannot be empty", bin)
	}
	if visibilityTimeout <= 0 {
		return contracts.NewConfigurationError("visibility timeout for %s must be positive", bin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[bin.Name()]; exists {
		return contracts.NewConfigurationError("%s is already registered", bin)
	}

	r.entries[bin.Name()] = binEntry{
		queueURL:          queueURL,
		visibilityTimeout: visibilityTimeout,
	}
	return nil
}

// QueueURL resolves the queue URL for a bin.
func (r *BinRegistry) QueueURL(bin contracts.MessageBin) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[bin.Name()]
	if !exists {
		return "", contracts.NewConfigurationError("no queue registered for %s", bin)
	}
	return entry.queueURL, nil
}

// VisibilityTimeout resolves the visibility timeout for a bin, falling back
// to the SQS default for unregistered bins.
func (r *BinRegistry) VisibilityTimeout(bin contracts.MessageBin) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[bin.Name()]
	if !exists {
		return 30 * time.Second
	}
	return entry.visibilityTimeout
}
