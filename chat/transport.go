// Package chat provides transports that deliver parsed chat messages for a
// live chatroom. Transports own their connection lifecycle, including
// reconnect/backoff; consumers just read the message channel.
package chat

import (
	"context"
	"time"
)

// Message is a single parsed chat message.
type Message struct {
	Content    string
	Username   string
	ReceivedAt time.Time
}

// Transport streams chat messages until its context is canceled. Messages()
// is closed when the transport shuts down for good (cancellation or exhausted
// reconnect attempts).
type Transport interface {
	// Run connects and blocks until ctx is canceled or the transport gives up.
	Run(ctx context.Context) error
	// Messages returns the delivery channel. Valid before Run is called.
	Messages() <-chan Message
}
