package contracts

import "time"

// MessageContext carries per-delivery metadata presented to consumers.
// ReadCount is always the broker's report, starting at 1 on first delivery.
type MessageContext struct {
	MessageID     string
	ReadCount     int
	FirstReceived time.Time
	RawMessage    string
}
