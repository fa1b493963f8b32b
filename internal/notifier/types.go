package notifier

import (
	"time"

	"deadman/internal/relay"
)

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	// Skipped: not attempted because no session could be acquired.
	Skipped Outcome = iota
	Delivered
	// Rejected: the endpoint refused the recipient.
	Rejected
	// TransportError: any other delivery failure.
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

type Delivery struct {
	Message relay.Message
	Outcome Outcome
	Err     error
}

// SendReport describes one bulk send.
type SendReport struct {
	ID         string
	Relay      string
	Started    time.Time
	Took       time.Duration
	Connected  bool
	ConnectErr error
	LoginErr   error
	Deliveries []Delivery
}

// Count returns the number of deliveries with outcome o.
func (r SendReport) Count(o Outcome) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

// Attempted returns the number of messages handed to the relay.
func (r SendReport) Attempted() int { return len(r.Deliveries) - r.Count(Skipped) }
