package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"deadman/internal/relay"
	logx "deadman/pkg/logx"

	"github.com/oklog/ulid/v2"
)

// DefaultOrigin is the sender used for messages enqueued without one.
const DefaultOrigin = "DEADMAN"

const historySize = 32

// Notifier is safe for concurrent use. Send calls are serialized so two
// sessions are never open at the same time.
type Notifier struct {
	relay  relay.Relay
	log    logx.Logger
	origin string

	mu    sync.Mutex
	queue []relay.Message

	sendMu sync.Mutex

	hmu     sync.Mutex
	history []SendReport
}

type Option func(*Notifier)

// WithOrigin sets the sender used when Enqueue gets no origin.
func WithOrigin(origin string) Option {
	return func(n *Notifier) {
		if s := strings.TrimSpace(origin); s != "" {
			n.origin = s
		}
	}
}

func New(r relay.Relay, log logx.Logger, opts ...Option) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{relay: r, log: log, origin: DefaultOrigin}
	for _, o := range opts {
		o(n)
	}
	n.log.Debug("notifier initialized", logx.String("relay", r.Name()), logx.String("endpoint", r.Endpoint()))
	return n
}

func (n *Notifier) Relay() relay.Relay { return n.relay }

// Enqueue appends a message. An empty or omitted origin falls back to the
// notifier's default origin.
func (n *Notifier) Enqueue(subject, body, destination string, origin ...string) {
	from := n.origin
	if len(origin) > 0 && strings.TrimSpace(origin[0]) != "" {
		from = strings.TrimSpace(origin[0])
	}
	n.mu.Lock()
	n.queue = append(n.queue, relay.Message{
		Subject:     subject,
		Body:        body,
		Destination: destination,
		Origin:      from,
	})
	n.mu.Unlock()
}

// Messages returns a copy of the queue.
func (n *Notifier) Messages() []relay.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]relay.Message(nil), n.queue...)
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Send attempts delivery of every queued message over one relay session.
func (n *Notifier) Send(ctx context.Context) (rep SendReport) {
	n.sendMu.Lock()
	defer n.sendMu.Unlock()

	msgs := n.Messages()
	rep = SendReport{
		ID:      ulid.Make().String(),
		Relay:   n.relay.Name(),
		Started: time.Now(),
	}
	log := n.log.With(
		logx.String("send_id", rep.ID),
		logx.String("relay", n.relay.Name()),
		logx.String("endpoint", n.relay.Endpoint()),
	)
	defer func() {
		rep.Took = time.Since(rep.Started)
		n.remember(rep)
	}()

	log.Debug("bulk send", logx.Int("messages", len(msgs)))

	sess, err := n.dial(ctx)
	if err != nil {
		rep.ConnectErr = err
		rep.Deliveries = make([]Delivery, len(msgs))
		for i, m := range msgs {
			rep.Deliveries[i] = Delivery{Message: m, Outcome: Skipped}
		}
		log.Critical("relay connection failed", logx.Err(err))
		log.Warn("messages not sent because of the connection failure", logx.Int("messages", len(msgs)))
		return rep
	}
	rep.Connected = true
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("relay session close failed", logx.Err(err))
		}
	}()

	if n.relay.HasCredentials() {
		if err := sess.Login(ctx); err != nil {
			// Relays that don't enforce auth still accept mail; try anyway.
			rep.LoginErr = err
			log.Warn("relay login failed; attempting delivery unauthenticated", logx.Err(err))
		}
	}

	rep.Deliveries = make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		d := n.deliver(ctx, sess, m)
		rep.Deliveries = append(rep.Deliveries, d)

		fields := []logx.Field{logx.String("subject", m.Subject), logx.String("destination", m.Destination)}
		switch d.Outcome {
		case Delivered:
			log.Info("message delivered", fields...)
		case Rejected:
			log.Warn("recipient refused", append(fields, logx.Err(d.Err))...)
		default:
			log.Critical("message delivery failed", append(fields, logx.Err(d.Err))...)
		}
	}

	log.Info("bulk send finished",
		logx.Int("delivered", rep.Count(Delivered)),
		logx.Int("rejected", rep.Count(Rejected)),
		logx.Int("failed", rep.Count(TransportError)),
	)
	return rep
}

// dial isolates the caller from relay panics.
func (n *Notifier) dial(ctx context.Context) (sess relay.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess, err = nil, fmt.Errorf("relay dial panic: %v", r)
		}
	}()
	return n.relay.Dial(ctx)
}

func (n *Notifier) deliver(ctx context.Context, sess relay.Session, m relay.Message) (d Delivery) {
	d = Delivery{Message: m}
	defer func() {
		if r := recover(); r != nil {
			d.Outcome, d.Err = TransportError, fmt.Errorf("relay deliver panic: %v", r)
		}
	}()

	n.log.Debug("delivering message", logx.String("subject", m.Subject), logx.String("destination", m.Destination))
	err := sess.Deliver(ctx, m)
	switch {
	case err == nil:
		d.Outcome = Delivered
	case relay.IsRejected(err):
		d.Outcome, d.Err = Rejected, err
	default:
		d.Outcome, d.Err = TransportError, err
	}
	return d
}

// Alert sends the queue and discards the report; outcomes are already logged.
func (n *Notifier) Alert(ctx context.Context) { n.Send(ctx) }

func (n *Notifier) remember(rep SendReport) {
	n.hmu.Lock()
	n.history = append(n.history, rep)
	if len(n.history) > historySize {
		n.history = n.history[len(n.history)-historySize:]
	}
	n.hmu.Unlock()
}

// History returns the most recent send reports, oldest first.
func (n *Notifier) History() []SendReport {
	n.hmu.Lock()
	defer n.hmu.Unlock()
	return append([]SendReport(nil), n.history...)
}
