package app

import (
	"fmt"
	"strconv"
	"strings"

	"deadman/internal/config"
	"deadman/internal/notifier"
	"deadman/internal/probe"
	"deadman/internal/relay/smtp"
	"deadman/internal/relay/telegram"
	"deadman/internal/watchdog"
	logx "deadman/pkg/logx"
)

func newProber(cfg *config.Config) (probe.Prober, error) {
	timeout, err := config.ParseDurationOrDefault("probe.timeout", cfg.Probe.Timeout, 0)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Probe.Kind)) {
	case "", config.ProbeICMP:
		return probe.ICMP{Timeout: timeout}, nil
	case config.ProbeTCP:
		return probe.TCP{Port: cfg.Probe.Port, Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("probe.kind: unknown kind %q", cfg.Probe.Kind)
	}
}

// newNotifiers builds one notifier per configured relay, each holding the
// configured alert message.
func newNotifiers(cfg *config.Config, log logx.Logger) (notifier.Group, error) {
	m := cfg.Mail
	timeout, err := config.ParseDurationOrDefault("mail.timeout", m.Timeout, smtp.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	mail := notifier.New(smtp.New(smtp.Config{
		Server:   m.Server,
		Username: m.Username,
		Password: m.Password,
		Timeout:  timeout,
		TLS:      m.TLS,
	}), log.With(logx.String("comp", "notifier.smtp")))
	mail.Enqueue(m.Subject, m.Message, m.Destination, m.Origin)

	group := notifier.Group{mail}

	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		timeout, err := config.ParseDurationOrDefault("telegram.timeout", tg.Timeout, telegram.DefaultTimeout)
		if err != nil {
			return nil, err
		}
		bot := notifier.New(telegram.New(telegram.Config{
			Token:      tg.Token,
			ThreadID:   tg.ThreadID,
			RatePerSec: tg.RatePerSec,
			Timeout:    timeout,
			APIURL:     tg.APIURL,
		}), log.With(logx.String("comp", "notifier.telegram")))
		bot.Enqueue(m.Subject, m.Message, strconv.FormatInt(tg.ChatID, 10), m.Origin)
		group = append(group, bot)
	}
	return group, nil
}

func loopConfig(cfg *config.Config) watchdog.Config {
	return watchdog.Config{
		Host:            cfg.PingHost,
		MaxFail:         cfg.MaxFail,
		SuccessInterval: cfg.Sleep.Success.Duration(),
		FailureInterval: cfg.Sleep.Fail.Duration(),
	}
}
