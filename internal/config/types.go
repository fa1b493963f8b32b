package config

// Config is the on-disk watchdog configuration.
//
// Example (JSON):
//
//	{
//	  "ping_host": "10.0.0.1",
//	  "max_fail": 5,
//	  "sleep": { "success": 60, "fail": 10 },
//	  "mail": { "server": "smtp.example.com", "origin": "deadman@example.com",
//	            "destination": "ops@example.com", "subject": "down", "message": "..." },
//	  "logging": { "level": "info", "console": true }
//	}
type Config struct {
	PingHost string      `json:"ping_host"`
	MaxFail  int         `json:"max_fail"`
	Sleep    SleepConfig `json:"sleep"`
	Mail     MailConfig  `json:"mail"`

	Probe    ProbeConfig     `json:"probe,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Systemd  *SystemdConfig  `json:"systemd,omitempty"`
	Logging  LoggingConfig   `json:"logging"`
}

// SleepConfig holds the wait between probes. Values are seconds (a JSON
// number) or Go duration strings ("1m30s").
type SleepConfig struct {
	Success Seconds `json:"success"`
	Fail    Seconds `json:"fail"`
}

// MailConfig describes the alert message and the SMTP relay it goes through.
type MailConfig struct {
	Server      string `json:"server"` // host or host:port (default port 25)
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`

	// Optional relay credentials. When Username is empty no AUTH is attempted.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // never logged

	// Timeout bounds connection acquisition (Go duration string, default "10s").
	Timeout string `json:"timeout,omitempty"`
	// TLS is one of "none" (default), "starttls", "tls".
	TLS string `json:"tls,omitempty"`
}

// ProbeConfig selects the reachability check.
type ProbeConfig struct {
	Kind    string `json:"kind,omitempty"`    // "icmp" (default) or "tcp"
	Port    int    `json:"port,omitempty"`    // tcp only
	Timeout string `json:"timeout,omitempty"` // Go duration string; empty = no limit for icmp, 5s for tcp
}

// TelegramConfig enables a second alert channel through the Telegram Bot API.
// The same subject/message is delivered to ChatID.
type TelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"` // never logged
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	// APIURL overrides the Bot API endpoint (tests, self-hosted Bot API servers).
	APIURL string `json:"api_url,omitempty"`
}

// SystemdConfig controls sd_notify integration. Nil means enabled; it is a
// no-op when the process is not started by systemd.
type SystemdConfig struct {
	Enabled bool `json:"enabled"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SystemdEnabled reports the effective systemd setting.
func (c *Config) SystemdEnabled() bool {
	return c.Systemd == nil || c.Systemd.Enabled
}
