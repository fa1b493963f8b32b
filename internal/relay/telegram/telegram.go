// Package telegram delivers alert messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"deadman/internal/relay"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const (
	DefaultTimeout = 10 * time.Second
	// Telegram caps message text at 4096 characters; keep some headroom.
	textLimit = 4000
)

type Config struct {
	Token      string
	ThreadID   int
	RatePerSec int
	Timeout    time.Duration
	// APIURL overrides the Bot API endpoint.
	APIURL string
}

// Relay opens a bot session per send. The bot token is verified with getMe on
// Dial, so Login has nothing left to do.
type Relay struct {
	cfg Config
}

var _ relay.Relay = (*Relay)(nil)

func New(cfg Config) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	return &Relay{cfg: cfg}
}

func (r *Relay) Name() string { return "telegram" }

func (r *Relay) Endpoint() string {
	if r.cfg.APIURL != "" {
		return r.cfg.APIURL
	}
	return tele.DefaultApiURL
}

func (r *Relay) HasCredentials() bool { return false }

func (r *Relay) Dial(ctx context.Context) (relay.Session, error) {
	if strings.TrimSpace(r.cfg.Token) == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bot, err := tele.NewBot(tele.Settings{
		URL:    r.cfg.APIURL,
		Token:  r.cfg.Token,
		Client: &http.Client{Timeout: r.cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	return &session{
		bot:      bot,
		threadID: r.cfg.ThreadID,
		lim:      rate.NewLimiter(rate.Limit(r.cfg.RatePerSec), 1),
	}, nil
}

type session struct {
	bot      *tele.Bot
	threadID int
	lim      *rate.Limiter
}

func (s *session) Login(context.Context) error { return nil }

// Deliver sends subject and body as one text message to the chat id in
// msg.Destination.
func (s *session) Deliver(ctx context.Context, msg relay.Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Destination), 10, 64)
	if err != nil || chatID == 0 {
		return relay.Rejected(fmt.Errorf("telegram: invalid chat id %q", msg.Destination))
	}
	if err := s.lim.Wait(ctx); err != nil {
		return err
	}
	_, err = s.bot.Send(&tele.Chat{ID: chatID}, Text(msg), &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              s.threadID,
	})
	if err != nil {
		if isRefusal(err) {
			return relay.Rejected(fmt.Errorf("telegram chat %d: %w", chatID, err))
		}
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

func (s *session) Close() error { return nil }

// Text renders a message as plain Telegram text.
func Text(msg relay.Message) string {
	var b strings.Builder
	if s := strings.TrimSpace(msg.Subject); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString(msg.Body)
	return truncate(b.String(), textLimit)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// isRefusal reports API errors caused by the target chat (missing chat,
// bot blocked or kicked) rather than the transport.
func isRefusal(err error) bool {
	var terr *tele.Error
	if !errors.As(err, &terr) {
		return false
	}
	return terr.Code == http.StatusBadRequest || terr.Code == http.StatusForbidden
}
