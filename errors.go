package ws2mongo

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConnectionNotEstablished = errors.New("websocket connection not established")
	ErrNoMessage                = errors.New("no message received")
	ErrConnectionClosed         = errors.New("connection has been closed")
	ErrCannotConnect            = errors.New("connection cannot be established")
	ErrRateLimit                = errors.New("rate limit exceeded")
	ErrUnsupportedScheme        = errors.New("unsupported endpoint scheme")

	ErrUnsupportedMessageFormat = errors.New("unsupported message format")
	ErrMalformedPayload         = errors.New("malformed json payload")
	ErrUnsupportedShape         = errors.New("received json is neither an object nor an array")

	ErrStoreUnreachable = errors.New("error connecting to mongodb")
	ErrSinkClosed       = errors.New("sink has been closed")
	ErrConsumerRunning  = errors.New("sink consumer is already running")
)

// ErrUnsupportedAuthMechanism is returned when the configured mechanism name does not map
// to any known credential variant.
type ErrUnsupportedAuthMechanism struct {
	Name string
}

func (e ErrUnsupportedAuthMechanism) Error() string {
	return fmt.Sprintf("unsupported auth mechanism: %s", e.Name)
}

// ErrMissingConfig is returned by Config.Validate for a required field left empty.
type ErrMissingConfig struct {
	Field string
}

func (e ErrMissingConfig) Error() string {
	return fmt.Sprintf("missing configuration value: %s", e.Field)
}
