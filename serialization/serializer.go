package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/queuebacca/queuebacca-go/contracts"
)

// Serializer encodes typed messages to and from string bodies. For any value
// m, FromString(ToString(m), &out) must leave out semantically equal to m.
type Serializer interface {
	// ToString encodes a message into a string body.
	ToString(v interface{}) (string, error)

	// FromString decodes a string body into the value pointed to by v.
	FromString(body string, v interface{}) error
}

// JSONSerializer is the default Serializer, backed by encoding/json.
type JSONSerializer struct {
	prettyPrint bool
}

// JSONSerializerOption configures the JSON serializer.
type JSONSerializerOption func(*JSONSerializer)

// WithPrettyPrint enables indented output.
func WithPrettyPrint(pretty bool) JSONSerializerOption {
	return func(s *JSONSerializer) {
		s.prettyPrint = pretty
	}
}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer(opts ...JSONSerializerOption) *JSONSerializer {
	s := &JSONSerializer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ToString implements Serializer.
func (s *JSONSerializer) ToString(v interface{}) (string, error) {
	if v == nil {
		return "", contracts.NewSerializationError(fmt.Errorf("message cannot be nil"))
	}

	var (
		data []byte
		err  error
	)
	if s.prettyPrint {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", contracts.NewSerializationError(fmt.Errorf("failed to marshal %T: %w", v, err))
	}

	return string(data), nil
}

// FromString implements Serializer.
func (s *JSONSerializer) FromString(body string, v interface{}) error {
	if body == "" {
		return contracts.NewSerializationError(fmt.Errorf("body cannot be empty"))
	}

	if err := json.Unmarshal([]byte(body), v); err != nil {
		return contracts.NewSerializationError(fmt.Errorf("failed to unmarshal into %T: %w", v, err))
	}

	return nil
}
