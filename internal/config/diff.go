package config

import (
	"reflect"
	"sort"
	"strings"

	logx "deadman/pkg/logx"
)

// LiveSections lists config sections that are re-applied without a restart.
var LiveSections = map[string]bool{"logging": true}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging (never includes passwords or tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.PingHost) != strings.TrimSpace(newCfg.PingHost) ||
		oldCfg.MaxFail != newCfg.MaxFail {
		changed = append(changed, "watchdog")
		attrs = append(attrs,
			logx.String("ping_host", strings.TrimSpace(newCfg.PingHost)),
			logx.Int("max_fail", newCfg.MaxFail),
		)
	}

	if oldCfg.Sleep != newCfg.Sleep {
		changed = append(changed, "sleep")
		attrs = append(attrs,
			logx.Duration("sleep.success", newCfg.Sleep.Success.Duration()),
			logx.Duration("sleep.fail", newCfg.Sleep.Fail.Duration()),
		)
	}

	// Mail (never log password)
	om, nm := oldCfg.Mail, newCfg.Mail
	if om.Server != nm.Server || om.Origin != nm.Origin || om.Destination != nm.Destination ||
		om.Subject != nm.Subject || om.Message != nm.Message || om.Username != nm.Username ||
		om.Password != nm.Password || om.Timeout != nm.Timeout || om.TLS != nm.TLS {
		changed = append(changed, "mail")
		attrs = append(attrs,
			logx.String("mail.server", nm.Server),
			logx.String("mail.destination", nm.Destination),
			logx.Bool("mail.auth", nm.Username != ""),
		)
	}

	if oldCfg.Probe != newCfg.Probe {
		changed = append(changed, "probe")
		attrs = append(attrs, logx.String("probe.kind", newCfg.Probe.Kind))
	}

	// Telegram (never log token)
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.enabled", newCfg.Telegram != nil && newCfg.Telegram.Enabled))
	}

	if oldCfg.SystemdEnabled() != newCfg.SystemdEnabled() {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.enabled", newCfg.SystemdEnabled()))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections that only take effect after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
