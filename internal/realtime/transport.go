package realtime

import "context"

// Sink receives one connection's stream. A transport calls Deliver, Dropped
// and Resumed from a single goroutine per connection, in commit order.
type Sink interface {
	Deliver(ctx context.Context, payload []byte)
	Dropped(err error)
	Resumed(ctx context.Context)
}

// Conn is one open logical connection to a collection's change stream.
type Conn interface {
	Close() error
}

// Transport carries changes from the record store to subscribers. Missed
// changes are never replayed after a reconnect.
type Transport interface {
	Publish(ctx context.Context, c Change) error
	Open(ctx context.Context, collection string, sink Sink) (Conn, error)
	Close() error
}
