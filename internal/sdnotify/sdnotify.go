// Package sdnotify reports service state to systemd over NOTIFY_SOCKET.
// Outside systemd every call is a no-op.
package sdnotify

import (
	"sync"
	"time"

	logx "deadman/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type sendFunc func(state string) (bool, error)

type Notifier struct {
	enabled bool
	send    sendFunc
	log     logx.Logger

	mu      sync.Mutex
	warned  bool
	watched time.Duration
}

// New returns a Notifier. When enabled is false nothing is sent.
func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		enabled: enabled,
		send:    func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		log:     log,
	}
	if enabled {
		if d, err := daemon.SdWatchdogEnabled(false); err == nil {
			n.watched = d
		}
	}
	return n
}

// WatchdogInterval is WATCHDOG_USEC for this process, or 0.
func (n *Notifier) WatchdogInterval() time.Duration { return n.watched }

func (n *Notifier) Ready()          { n.notify(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()       { n.notify(daemon.SdNotifyStopping) }
func (n *Notifier) Beat()           { n.notify(daemon.SdNotifyWatchdog) }
func (n *Notifier) Status(s string) { n.notify("STATUS=" + s) }

func (n *Notifier) notify(state string) {
	if n == nil || !n.enabled {
		return
	}
	ok, err := n.send(state)
	if err == nil {
		if ok {
			n.log.Trace("sd_notify sent", logx.String("state", state))
		}
		return
	}
	// One warning is enough; the socket does not come back.
	n.mu.Lock()
	first := !n.warned
	n.warned = true
	n.mu.Unlock()
	if first {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}
