package messaging

import (
	"errors"
	"log/slog"
	"reflect"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// ExceptionHandler maps a consumer failure to a disposition.
type ExceptionHandler func(err error, mctx *contracts.MessageContext) contracts.MessageResponse

// ExceptionResolver maps raised errors to dispositions. Registrations are
// consulted in order, so register the most specific matchers first. An
// unmatched error is logged and retried.
type ExceptionResolver struct {
	registrations []exceptionRegistration
	logger        *slog.Logger
}

type exceptionRegistration struct {
	matches func(err error) bool
	handler ExceptionHandler
}

// ExceptionResolverOption configures the ExceptionResolver.
type ExceptionResolverOption func(*ExceptionResolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ExceptionResolverOption {
	return func(r *ExceptionResolver) {
		r.logger = logger
	}
}

// NewExceptionResolver creates an empty resolver; every error resolves to
// Retry until handlers are registered.
func NewExceptionResolver(options ...ExceptionResolverOption) *ExceptionResolver {
	r := &ExceptionResolver{
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// HandleIs registers a handler for errors matching target per errors.Is.
func (r *ExceptionResolver) HandleIs(target error, handler ExceptionHandler) *ExceptionResolver {
	r.registrations = append(r.registrations, exceptionRegistration{
		matches: func(err error) bool { return errors.Is(err, target) },
		handler: handler,
	})
	return r
}

// HandleAs registers a handler for errors assignable to the dynamic type of
// target per errors.As. target must not be a nil interface; only its type is
// used, e.g. &PoisonError{} or (*PoisonError)(nil) both match errors of type
// *PoisonError.
func (r *ExceptionResolver) HandleAs(target error, handler ExceptionHandler) *ExceptionResolver {
	targetType := reflect.TypeOf(target)
	r.registrations = append(r.registrations, exceptionRegistration{
		matches: func(err error) bool {
			probe := reflect.New(targetType).Interface()
			return errors.As(err, probe)
		},
		handler: handler,
	})
	return r
}

// HandleMatch registers a handler behind an arbitrary predicate.
func (r *ExceptionResolver) HandleMatch(matches func(err error) bool, handler ExceptionHandler) *ExceptionResolver {
	r.registrations = append(r.registrations, exceptionRegistration{
		matches: matches,
		handler: handler,
	})
	return r
}

// Resolve maps err to a disposition using the first matching registration.
// Unmatched errors are logged with the message id and retried.
func (r *ExceptionResolver) Resolve(err error, mctx *contracts.MessageContext) contracts.MessageResponse {
	for _, reg := range r.registrations {
		if reg.matches(err) {
			return reg.handler(err, mctx)
		}
	}

	r.logger.Error("unhandled consumer error",
		"messageId", mctx.MessageID,
		"readCount", mctx.ReadCount,
		"error", err,
	)
	return contracts.Retry
}
