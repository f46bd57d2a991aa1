package repositories

import "context"

// TransportHandler receives the asynchronous events of an open connection
type TransportHandler interface {
	// OnMessage is called for every inbound text message
	OnMessage(payload []byte)
	// OnError is called once if the connection fails while open
	OnError(err error)
	// OnClose is called once after the connection is closed, by either side
	OnClose()
}

// Transport opens streaming connections to the recognizer
type Transport interface {
	// Open dials url and starts delivering inbound messages to handler.
	// It returns once the connection is established or the dial failed.
	Open(ctx context.Context, url string, handler TransportHandler) (Connection, error)
}

// Connection is an open recognizer connection
type Connection interface {
	// SendText queues a UTF-8 text message for delivery without waiting for the write
	SendText(payload []byte) error
	// Close closes the connection. Calling it more than once is safe.
	Close() error
}
