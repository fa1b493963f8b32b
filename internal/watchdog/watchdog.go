// Package watchdog runs the probe/wait/evaluate cycle and decides when to alert.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deadman/internal/probe"
	logx "deadman/pkg/logx"

	"github.com/oklog/ulid/v2"
)

// DefaultHeartbeatPeriod is the number of cycles between heartbeat events.
const DefaultHeartbeatPeriod = 100

type Config struct {
	Host            string
	MaxFail         int
	SuccessInterval time.Duration
	FailureInterval time.Duration
	// HeartbeatPeriod defaults to DefaultHeartbeatPeriod.
	HeartbeatPeriod int
}

// Alerter is invoked when the failure threshold is reached. It must not
// return before the alert attempt is over.
type Alerter interface {
	Alert(ctx context.Context)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(ctx context.Context)

func (f AlertFunc) Alert(ctx context.Context) { f(ctx) }

// Pulse receives liveness signals: Beat once per cycle, Status on heartbeat
// and trigger.
type Pulse interface {
	Beat()
	Status(status string)
}

type nopPulse struct{}

func (nopPulse) Beat()         {}
func (nopPulse) Status(string) {}

// CycleResult describes one completed cycle.
type CycleResult struct {
	Cycle     uint64
	Reachable bool
	// Failures is the consecutive-failure count after the cycle (0 after a trigger).
	Failures  int
	Triggered bool
	TriggerID string
	Heartbeat bool
}

// Loop owns the failure and cycle counters of one watched host. A Loop is not
// safe for concurrent use; Run drives it from a single goroutine.
type Loop struct {
	cfg     Config
	prober  probe.Prober
	alerter Alerter
	sleeper Sleeper
	pulse   Pulse
	log     logx.Logger

	failures int
	cycle    int

	cycles   uint64
	triggers int
}

type Option func(*Loop)

func WithSleeper(s Sleeper) Option { return func(l *Loop) { l.sleeper = s } }
func WithPulse(p Pulse) Option     { return func(l *Loop) { l.pulse = p } }
func WithLogger(log logx.Logger) Option {
	return func(l *Loop) { l.log = log }
}

func New(cfg Config, p probe.Prober, a Alerter, opts ...Option) (*Loop, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	switch {
	case cfg.Host == "":
		return nil, errors.New("watchdog: host required")
	case cfg.MaxFail <= 0:
		return nil, fmt.Errorf("watchdog: max fail must be > 0, got %d", cfg.MaxFail)
	case cfg.SuccessInterval < 0 || cfg.FailureInterval < 0:
		return nil, errors.New("watchdog: intervals must be >= 0")
	case p == nil:
		return nil, errors.New("watchdog: prober required")
	case a == nil:
		return nil, errors.New("watchdog: alerter required")
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	l := &Loop{
		cfg:     cfg,
		prober:  p,
		alerter: a,
		sleeper: SleepFunc(Sleep),
		pulse:   nopPulse{},
		log:     logx.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	l.log = l.log.With(logx.String("host", cfg.Host))
	return l, nil
}

// Failures returns the current consecutive-failure count.
func (l *Loop) Failures() int { return l.failures }

// Triggers returns how many times the threshold was reached.
func (l *Loop) Triggers() int { return l.triggers }

// Run cycles until ctx is done. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("watchdog started",
		logx.Int("max_fail", l.cfg.MaxFail),
		logx.Duration("sleep_success", l.cfg.SuccessInterval),
		logx.Duration("sleep_fail", l.cfg.FailureInterval),
	)
	for {
		if _, err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Info("watchdog stopped", logx.Int("triggers", l.triggers), logx.Int64("cycles", int64(l.cycles)))
				return nil
			}
			return err
		}
	}
}

// Step runs one cycle: probe, update the counter, wait, evaluate the trigger,
// count the cycle. It only fails when ctx ends during the wait; the trigger
// check of that cycle is then skipped.
func (l *Loop) Step(ctx context.Context) (CycleResult, error) {
	res := CycleResult{Reachable: l.probe(ctx)}

	wait := l.cfg.FailureInterval
	if res.Reachable {
		l.failures = 0
		wait = l.cfg.SuccessInterval
		l.log.Debug("host reachable")
	} else {
		l.failures++
		l.log.Info("host did not respond", logx.Int("consecutive_failures", l.failures))
	}

	if err := l.sleeper.Sleep(ctx, wait); err != nil {
		res.Failures = l.failures
		return res, err
	}

	if l.failures >= l.cfg.MaxFail {
		res.Triggered = true
		res.TriggerID = ulid.Make().String()
		l.triggers++
		l.log.Info("trigger engaged",
			logx.Int("consecutive_failures", l.failures),
			logx.String("trigger_id", res.TriggerID),
		)
		l.pulse.Status(fmt.Sprintf("%s unreachable for %d probes; alert sent", l.cfg.Host, l.failures))
		l.alert(ctx)
		// Always reset: a new alert needs a fresh run of MaxFail failures.
		l.failures = 0
	}
	res.Failures = l.failures

	l.cycles++
	res.Cycle = l.cycles
	l.cycle++
	if l.cycle == l.cfg.HeartbeatPeriod {
		res.Heartbeat = true
		l.cycle = 0
		l.log.Info("heartbeat: main event loop", logx.Int64("cycles", int64(l.cycles)))
		l.pulse.Status(fmt.Sprintf("watching %s; %d cycles, %d alerts", l.cfg.Host, l.cycles, l.triggers))
	}
	l.pulse.Beat()
	return res, nil
}

// probe never fails: errors and panics count as unreachable.
func (l *Loop) probe(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Critical("probe panicked; counting host as unreachable", logx.Any("panic", r))
			ok = false
		}
	}()
	ok, err := l.prober.Probe(ctx, l.cfg.Host)
	if err != nil {
		if errors.Is(err, probe.ErrUnavailable) {
			l.log.Critical("probe mechanism unavailable; counting host as unreachable", logx.Err(err))
		} else {
			l.log.Error("probe failed; counting host as unreachable", logx.Err(err))
		}
		return false
	}
	return ok
}

func (l *Loop) alert(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Critical("alert panicked", logx.Any("panic", r))
		}
	}()
	l.alerter.Alert(ctx)
}
