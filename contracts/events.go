package contracts

import "time"

// TimingEvent reports how long a single consume attempt took, emitted after
// the disposition has been applied.
type TimingEvent struct {
	Bin         MessageBin
	MessageType string
	MessageID   string
	Timestamp   time.Time
	Duration    time.Duration
	Response    MessageResponse
}

// TimingListener receives TimingEvents. Implementations must be safe for
// concurrent use; events for one subscription may arrive from multiple
// goroutines.
type TimingListener interface {
	OnTiming(event TimingEvent)
}

// TimingListenerFunc is a function adapter for TimingListener.
type TimingListenerFunc func(event TimingEvent)

// OnTiming implements TimingListener.
func (f TimingListenerFunc) OnTiming(event TimingEvent) {
	f(event)
}
