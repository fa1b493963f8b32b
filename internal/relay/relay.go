// Package relay defines the message-relay capability used by the notifier.
//
// A Relay opens one Session per bulk send. The session walks the connection
// lifecycle: unconnected -> connecting -> connected (or connect failed) ->
// optionally authenticated -> closing -> closed. Transport details (SMTP,
// Telegram Bot API) live in sub-packages.
package relay

import (
	"context"
	"errors"
	"fmt"
)

// Message is one pre-composed alert.
type Message struct {
	Subject     string
	Body        string
	Destination string
	Origin      string
}

// Relay acquires sessions to a message-relay endpoint.
type Relay interface {
	// Name identifies the relay in logs ("smtp", "telegram").
	Name() string
	// Endpoint is a printable, secret-free address of the relay.
	Endpoint() string
	// HasCredentials reports whether Session.Login should be attempted.
	HasCredentials() bool
	// Dial acquires a session, bounded by the relay's connect timeout.
	Dial(ctx context.Context) (Session, error)
}

// Session is a live connection scoped to one bulk send.
type Session interface {
	Login(ctx context.Context) error
	// Deliver submits one message. A per-recipient refusal is returned wrapped
	// with Rejected so callers can tell it from transport errors.
	Deliver(ctx context.Context, msg Message) error
	// Close ends the session. It is safe to call after a failed Deliver.
	Close() error
}

// ErrRejected marks a per-recipient refusal by the endpoint.
var ErrRejected = errors.New("recipient rejected")

// Rejected wraps err as a per-recipient refusal.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

// IsRejected reports whether err is a per-recipient refusal.
func IsRejected(err error) bool { return errors.Is(err, ErrRejected) }
