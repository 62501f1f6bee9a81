package messaging

import (
	"context"
	"reflect"
	"sync"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// RoutingMessageConsumer routes messages to registered consumers by runtime
// type, letting several message types share a single bin. Routes are
// registered against a concrete type or an interface; resolution checks the
// concrete type first, then registered interfaces in registration order, and
// memoises the result.
//
// Interface lookup stops at the message's own assignability; there is no
// walk over embedded struct types.
type RoutingMessageConsumer struct {
	consumers  map[reflect.Type]MessageConsumer
	interfaces []reflect.Type
	routes     sync.Map // reflect.Type -> reflect.Type
}

// NewRoutingMessageConsumer creates an empty routing consumer.
func NewRoutingMessageConsumer() *RoutingMessageConsumer {
	return &RoutingMessageConsumer{
		consumers: make(map[reflect.Type]MessageConsumer),
	}
}

// Register routes messages of prototype's type to consumer. To register an
// interface route, pass a nil pointer to the interface, e.g.
// (*InventoryEvent)(nil). Duplicate registrations are rejected.
//
// Registration is not synchronized with consumption; register all routes
// before subscribing.
func (r *RoutingMessageConsumer) Register(prototype interface{}, consumer MessageConsumer) error {
	if prototype == nil {
		return contracts.NewConfigurationError("route prototype cannot be nil")
	}
	if consumer == nil {
		return contracts.NewConfigurationError("route consumer cannot be nil")
	}

	key := reflect.TypeOf(prototype)
	if key.Kind() == reflect.Ptr && key.Elem().Kind() == reflect.Interface {
		key = key.Elem()
	}

	if _, exists := r.consumers[key]; exists {
		return contracts.NewConfigurationError("a message consumer for type '%s' has already been registered", key)
	}

	r.consumers[key] = consumer
	if key.Kind() == reflect.Interface {
		r.interfaces = append(r.interfaces, key)
	}
	return nil
}

// Consume implements MessageConsumer by delegating to the registered route
// for the message's runtime type. A missing route is a configuration error,
// surfaced as a consumer failure.
func (r *RoutingMessageConsumer) Consume(ctx context.Context, msg interface{}, mctx *contracts.MessageContext) (contracts.MessageResponse, error) {
	if msg == nil {
		return contracts.Retry, contracts.NewConfigurationError("cannot route a nil message")
	}

	consumer, ok := r.findConsumer(reflect.TypeOf(msg))
	if !ok {
		return contracts.Retry, contracts.NewConfigurationError("no consumer available for message '%T'", msg)
	}
	return consumer.Consume(ctx, msg, mctx)
}

func (r *RoutingMessageConsumer) findConsumer(messageType reflect.Type) (MessageConsumer, bool) {
	if mapped, ok := r.routes.Load(messageType); ok {
		return r.consumers[mapped.(reflect.Type)], true
	}

	mapped, ok := r.mapMessageType(messageType)
	if !ok {
		return nil, false
	}

	r.routes.Store(messageType, mapped)
	return r.consumers[mapped], true
}

func (r *RoutingMessageConsumer) mapMessageType(messageType reflect.Type) (reflect.Type, bool) {
	if _, ok := r.consumers[messageType]; ok {
		return messageType, true
	}

	for _, iface := range r.interfaces {
		if messageType.Implements(iface) {
			return iface, true
		}
	}

	// A pointer message can also satisfy a route registered on its element
	// type.
	if messageType.Kind() == reflect.Ptr {
		if _, ok := r.consumers[messageType.Elem()]; ok {
			return messageType.Elem(), true
		}
	}

	return nil, false
}
