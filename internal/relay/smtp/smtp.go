// Package smtp delivers alert messages through an SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"deadman/internal/relay"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultPort    = "25"
	DefaultTimeout = 10 * time.Second

	TLSNone     = "none"
	TLSStartTLS = "starttls"
	TLSImplicit = "tls"
)

type Config struct {
	// Server is host or host:port.
	Server   string
	Username string
	Password string
	// Timeout bounds connection acquisition and every SMTP command.
	Timeout time.Duration
	// TLS is one of TLSNone, TLSStartTLS (used when advertised) or TLSImplicit.
	TLS string
	// LocalName is sent with EHLO. Defaults to the hostname.
	LocalName string
	// TLSConfig overrides the TLS client config.
	TLSConfig *tls.Config
}

type Relay struct {
	cfg  Config
	addr string
	host string
}

var _ relay.Relay = (*Relay)(nil)

func New(cfg Config) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.TLS = strings.ToLower(strings.TrimSpace(cfg.TLS))
	if cfg.TLS == "" {
		cfg.TLS = TLSNone
	}
	if strings.TrimSpace(cfg.LocalName) == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			cfg.LocalName = h
		} else {
			cfg.LocalName = "localhost"
		}
	}
	addr, host := splitServer(cfg.Server)
	return &Relay{cfg: cfg, addr: addr, host: host}
}

func splitServer(server string) (addr, host string) {
	server = strings.TrimSpace(server)
	if h, _, err := net.SplitHostPort(server); err == nil {
		return server, h
	}
	return net.JoinHostPort(server, DefaultPort), server
}

func (r *Relay) Name() string         { return "smtp" }
func (r *Relay) Endpoint() string     { return r.addr }
func (r *Relay) HasCredentials() bool { return r.cfg.Username != "" }

func (r *Relay) tlsConfig() *tls.Config {
	if r.cfg.TLSConfig != nil {
		return r.cfg.TLSConfig
	}
	return &tls.Config{ServerName: r.host, MinVersion: tls.VersionTLS12}
}

// Dial connects, reads the greeting and sends EHLO. STARTTLS is negotiated
// when configured and advertised.
func (r *Relay) Dial(ctx context.Context) (relay.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	d := &net.Dialer{Timeout: r.cfg.Timeout}
	var (
		conn net.Conn
		err  error
	)
	if r.cfg.TLS == TLSImplicit {
		conn, err = (&tls.Dialer{NetDialer: d, Config: r.tlsConfig()}).DialContext(ctx, "tcp", r.addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", r.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", r.addr, err)
	}

	c := gosmtp.NewClient(conn)
	c.CommandTimeout = r.cfg.Timeout
	c.SubmissionTimeout = max(r.cfg.Timeout, time.Minute)

	if err := c.Hello(r.cfg.LocalName); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("smtp hello %s: %w", r.addr, err)
	}
	if r.cfg.TLS == TLSStartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(r.tlsConfig()); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("smtp starttls %s: %w", r.addr, err)
			}
		}
	}
	return &session{c: c, cfg: r.cfg}, nil
}

type session struct {
	c   *gosmtp.Client
	cfg Config
}

func (s *session) Login(_ context.Context) error {
	if s.cfg.Username == "" {
		return nil
	}
	if ok, _ := s.c.Extension("AUTH"); !ok {
		return errors.New("smtp: server does not advertise AUTH")
	}
	if err := s.c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
		return fmt.Errorf("smtp auth as %q: %w", s.cfg.Username, err)
	}
	return nil
}

// Deliver runs one MAIL/RCPT/DATA transaction. The session is reset after a
// failure so the next message starts clean.
func (s *session) Deliver(_ context.Context, msg relay.Message) error {
	to, err := recipients(msg.Destination)
	if err != nil {
		return relay.Rejected(err)
	}
	var body bytes.Buffer
	if err := Compose(&body, msg, time.Now()); err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	if err := s.c.Mail(envelopeAddress(msg.Origin), nil); err != nil {
		s.reset()
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}

	var refused []error
	for _, rcpt := range to {
		if err := s.c.Rcpt(rcpt, nil); err != nil {
			if !isReply(err) {
				s.reset()
				return fmt.Errorf("smtp RCPT TO <%s>: %w", rcpt, err)
			}
			refused = append(refused, fmt.Errorf("<%s>: %w", rcpt, err))
		}
	}
	if len(refused) == len(to) {
		s.reset()
		return relay.Rejected(errors.Join(refused...))
	}

	w, err := s.c.Data()
	if err != nil {
		s.reset()
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := io.Copy(w, &body); err != nil {
		_ = w.Close()
		s.reset()
		return fmt.Errorf("smtp DATA write: %w", err)
	}
	if err := w.Close(); err != nil {
		s.reset()
		return fmt.Errorf("smtp DATA: %w", err)
	}
	return nil
}

func (s *session) reset() { _ = s.c.Reset() }

func (s *session) Close() error {
	if err := s.c.Quit(); err != nil {
		_ = s.c.Close()
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

// isReply reports whether err is an SMTP reply from the server rather than a
// broken connection.
func isReply(err error) bool {
	var se *gosmtp.SMTPError
	return errors.As(err, &se)
}

func newMessageID() string {
	return ulid.Make().String() + "@deadman"
}
