package indigo

import "errors"

// Domain errors for the INDIGO protocol package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the device server.
	ErrNotConnected = errors.New("indigo: not connected to device server")

	// ErrConnectionFailed is returned when the connection to the device
	// server cannot be established within the retry budget.
	ErrConnectionFailed = errors.New("indigo: connection to device server failed")

	// ErrSendFailed is returned when writing a message to the server fails.
	ErrSendFailed = errors.New("indigo: message send failed")

	// ErrInvalidMessage is returned when a message cannot be serialised
	// or a received line cannot be parsed.
	ErrInvalidMessage = errors.New("indigo: invalid message")

	// ErrClosed is returned when an operation is attempted on a closed client.
	ErrClosed = errors.New("indigo: client closed")
)
