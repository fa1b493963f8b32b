package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deadman/internal/config"
	"deadman/internal/notifier"
	"deadman/internal/runtime/supervisor"
	"deadman/internal/sdnotify"
	"deadman/internal/watchdog"
	logx "deadman/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	sd        *sdnotify.Notifier
	notifiers notifier.Group
	loop      *watchdog.Loop
}

// New loads and validates the config and builds every component. Nothing
// runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(cfg.LogConfig())
	appLog := log.With(logx.String("comp", "app"))

	prober, err := newProber(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	group, err := newNotifiers(cfg, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	sd := sdnotify.New(cfg.SystemdEnabled(), log.With(logx.String("comp", "sdnotify")))
	loop, err := watchdog.New(loopConfig(cfg), prober, group,
		watchdog.WithLogger(log.With(logx.String("comp", "watchdog"))),
		watchdog.WithPulse(sd),
	)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       appLog,
		logs:      logSvc,
		sd:        sd,
		notifiers: group,
		loop:      loop,
	}, nil
}

func (a *App) Notifiers() notifier.Group { return a.notifiers }

func (a *App) Loop() *watchdog.Loop { return a.loop }

// Done is closed when the app context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Reloads are validated with the same rules as startup before they are committed.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	cfg := a.cfgm.Get()
	relays := make([]string, 0, len(a.notifiers))
	for _, n := range a.notifiers {
		relays = append(relays, n.Relay().Name()+"="+n.Relay().Endpoint())
	}
	a.log.Info("deadman starting",
		logx.String("config", a.cfgPath),
		logx.String("ping_host", cfg.PingHost),
		logx.Int("max_fail", cfg.MaxFail),
		logx.String("relays", strings.Join(relays, ",")),
	)

	a.sup.Go("watchdog", a.loop.Run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, 30*time.Second)

	a.sd.Ready()
	a.sd.Status("watching " + cfg.PingHost)
	a.log.Info("app started")
	return nil
}

// applyConfig re-applies the live sections and reports the rest.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(newCfg.LogConfig())

	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.logs.Close()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so the loop's wait and any in-flight send unwind immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			var cancel context.CancelFunc
			// context.WithTimeout never extends the caller's deadline.
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			return
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	var err error
	step("supervisor", 5*time.Second, func(c context.Context) error {
		err = a.sup.Wait(c)
		return err
	})

	if err == nil {
		// The loop goroutine has returned; its counters are safe to read.
		a.log.Info("stopped",
			logx.Int("alerts", a.loop.Triggers()),
			logx.Int("consecutive_failures", a.loop.Failures()),
		)
	} else {
		a.log.Info("stopped")
	}
	a.logs.Close()
	return err
}
