package contracts

import "time"

// IncomingEnvelope wraps a message delivered by the broker. Engine
// bookkeeping keys on the envelope pointer: two deliveries of the same
// message carry different receipts and are distinct envelopes.
type IncomingEnvelope struct {
	MessageID     string
	Receipt       string
	ReadCount     int
	FirstReceived time.Time
	Message       interface{}
	RawMessage    string
}

// Context builds the MessageContext presented to consumers for this delivery.
func (e *IncomingEnvelope) Context() *MessageContext {
	return &MessageContext{
		MessageID:     e.MessageID,
		ReadCount:     e.ReadCount,
		FirstReceived: e.FirstReceived,
		RawMessage:    e.RawMessage,
	}
}

// OutgoingEnvelope wraps a message accepted by the broker for delivery.
type OutgoingEnvelope struct {
	MessageID  string
	Message    interface{}
	RawMessage string
}
