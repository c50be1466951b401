package ws2mongo

import (
	"context"
)

type (
	// Connection is one established transport connection. Read and Write may run
	// concurrently with each other, but each of them must be serialized by the caller.
	Connection interface {
		// Read blocks until the next inbound frame. It returns ErrNoMessage (wrapped) when
		// the stream ended cleanly and ErrConnectionClosed (wrapped) on transport failure.
		Read(ctx context.Context) (Message, error)
		// Write sends a single frame.
		Write(m Message) error
		// Close releases the underlying socket. Pending and future reads fail.
		Close() error
	}

	// ConnectionFactory performs the handshake described by params and returns the open connection.
	ConnectionFactory func(ctx context.Context, params OpenConnectionParams) (Connection, error)
)
