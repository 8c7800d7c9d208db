package domain

import "context"

// SendReceipt is what a session reports back for a dispatched message.
// MessageID is empty when the platform response omits one.
type SendReceipt struct {
	MessageID string
}

// ActiveSession is the capability a login or gateway flow registers once it
// holds a live, authenticated web-session connection. At most one instance
// is registered process-wide at any time; whoever registers it keeps
// ownership and is responsible for closing it.
type ActiveSession interface {
	SendMessage(ctx context.Context, to, text string, media []byte, mediaType string) (SendReceipt, error)
	SendComposingTo(ctx context.Context, to string) error
}

// SessionCloser is optionally implemented by sessions that own an
// underlying connection.
type SessionCloser interface {
	Close() error
}
