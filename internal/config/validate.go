package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	logx "deadman/pkg/logx"
)

// ErrInvalid marks configuration errors found by Validate.
var ErrInvalid = errors.New("invalid config")

const (
	ProbeICMP = "icmp"
	ProbeTCP  = "tcp"

	TLSNone     = "none"
	TLSStartTLS = "starttls"
	TLSImplicit = "tls"
)

// Validate checks the whole config and reports every problem at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.PingHost) == "" {
		bad("ping_host is required")
	}
	// A threshold of zero would fire on every cycle.
	if cfg.MaxFail <= 0 {
		bad("max_fail must be > 0, got %d", cfg.MaxFail)
	}

	m := cfg.Mail
	if strings.TrimSpace(m.Server) == "" {
		bad("mail.server is required")
	} else if err := checkHostPort(m.Server); err != nil {
		bad("mail.server: %v", err)
	}
	if strings.TrimSpace(m.Destination) == "" {
		bad("mail.destination is required")
	}
	if _, err := ParseDurationField("mail.timeout", m.Timeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(m.TLS)) {
	case "", TLSNone, TLSStartTLS, TLSImplicit:
	default:
		bad("mail.tls: unknown mode %q (want none, starttls or tls)", m.TLS)
	}
	if m.Password != "" && m.Username == "" {
		bad("mail.password set without mail.username")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Probe.Kind)) {
	case "", ProbeICMP:
	case ProbeTCP:
		if cfg.Probe.Port <= 0 || cfg.Probe.Port > 65535 {
			bad("probe.port must be within 1..65535 for tcp probes, got %d", cfg.Probe.Port)
		}
	default:
		bad("probe.kind: unknown kind %q (want icmp or tcp)", cfg.Probe.Kind)
	}
	if _, err := ParseDurationField("probe.timeout", cfg.Probe.Timeout); err != nil {
		errs = append(errs, err)
	}

	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			bad("telegram.token is required when telegram is enabled")
		}
		if tg.ChatID == 0 {
			bad("telegram.chat_id is required when telegram is enabled")
		}
		if tg.RatePerSec < 0 {
			bad("telegram.rate_per_sec must be >= 0")
		}
		if _, err := ParseDurationField("telegram.timeout", tg.Timeout); err != nil {
			errs = append(errs, err)
		}
	}

	if err := ValidateLogging(cfg.Logging); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// ValidateLogging checks the section that can be re-applied without a restart.
func ValidateLogging(l LoggingConfig) error {
	if _, ok := logx.ParseLevel(l.Level); !ok {
		return fmt.Errorf("logging.level: unknown level %q", l.Level)
	}
	return nil
}

func checkHostPort(s string) error {
	s = strings.TrimSpace(s)
	if net.ParseIP(s) != nil || !strings.Contains(s, ":") {
		return nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
