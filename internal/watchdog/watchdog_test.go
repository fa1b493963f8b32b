package watchdog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"deadman/internal/probe"
	logx "deadman/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script replays a fixed list of probe outcomes, then repeats the last one.
type script struct {
	outcomes []bool
	calls    int
}

func (s *script) Probe(context.Context, string) (bool, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i], nil
}

type recordSleeper struct {
	waits []time.Duration
}

func (r *recordSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

type countAlerter struct {
	mu    sync.Mutex
	calls int
}

func (c *countAlerter) Alert(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

type recordPulse struct {
	beats    int
	statuses []string
}

func (p *recordPulse) Beat()           { p.beats++ }
func (p *recordPulse) Status(s string) { p.statuses = append(p.statuses, s) }

func newLoop(t *testing.T, cfg Config, p probe.Prober, a Alerter, opts ...Option) (*Loop, *recordSleeper) {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "10.0.0.1"
	}
	s := &recordSleeper{}
	l, err := New(cfg, p, a, append([]Option{WithSleeper(s)}, opts...)...)
	require.NoError(t, err)
	return l, s
}

func steps(t *testing.T, l *Loop, n int) []CycleResult {
	t.Helper()
	out := make([]CycleResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := l.Step(context.Background())
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestNewRejectsBadConfig(t *testing.T) {
	p := probe.Func(func(context.Context, string) (bool, error) { return true, nil })
	a := AlertFunc(func(context.Context) {})

	cases := map[string]Config{
		"zero max fail":     {Host: "h", MaxFail: 0},
		"negative max fail": {Host: "h", MaxFail: -1},
		"empty host":        {Host: " ", MaxFail: 1},
		"negative interval": {Host: "h", MaxFail: 1, FailureInterval: -time.Second},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg, p, a)
			assert.Error(t, err)
		})
	}

	_, err := New(Config{Host: "h", MaxFail: 1}, nil, a)
	assert.Error(t, err)
	_, err = New(Config{Host: "h", MaxFail: 1}, p, nil)
	assert.Error(t, err)
}

func TestNeverReachableTriggersEveryMaxFail(t *testing.T) {
	a := &countAlerter{}
	l, _ := newLoop(t, Config{MaxFail: 3}, &script{outcomes: []bool{false}}, a)

	var triggered []uint64
	for _, res := range steps(t, l, 7) {
		if res.Triggered {
			triggered = append(triggered, res.Cycle)
			assert.NotEmpty(t, res.TriggerID)
			assert.Zero(t, res.Failures)
		}
	}
	assert.Equal(t, []uint64{3, 6}, triggered)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 2, l.Triggers())
	assert.Equal(t, 1, l.Failures())
}

func TestAlternatingNeverTriggers(t *testing.T) {
	outcomes := make([]bool, 500)
	for i := range outcomes {
		outcomes[i] = i%2 == 1
	}
	a := &countAlerter{}
	l, _ := newLoop(t, Config{MaxFail: 2}, &script{outcomes: outcomes}, a)

	for _, res := range steps(t, l, len(outcomes)) {
		assert.False(t, res.Triggered)
		assert.LessOrEqual(t, res.Failures, 1)
	}
	assert.Zero(t, a.calls)
}

func TestAlwaysReachableNeverTriggers(t *testing.T) {
	a := &countAlerter{}
	l, _ := newLoop(t, Config{MaxFail: 1}, &script{outcomes: []bool{true}}, a)
	for _, res := range steps(t, l, 250) {
		assert.True(t, res.Reachable)
		assert.Zero(t, res.Failures)
	}
	assert.Zero(t, a.calls)
}

func TestSingleFailureWithMaxFailOne(t *testing.T) {
	a := &countAlerter{}
	l, _ := newLoop(t, Config{MaxFail: 1}, &script{outcomes: []bool{true, false, true}}, a)
	res := steps(t, l, 3)
	assert.False(t, res[0].Triggered)
	assert.True(t, res[1].Triggered)
	assert.False(t, res[2].Triggered)
	assert.Equal(t, 1, a.calls)
}

func TestCounterTracksTrailingFailureRun(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	outcomes := make([]bool, 2000)
	for i := range outcomes {
		outcomes[i] = rng.Intn(3) == 0
	}
	const maxFail = 4
	a := &countAlerter{}
	l, _ := newLoop(t, Config{MaxFail: maxFail}, &script{outcomes: outcomes}, a)

	run, alerts := 0, 0
	for i, res := range steps(t, l, len(outcomes)) {
		if outcomes[i] {
			run = 0
		} else {
			run++
		}
		want := false
		if run >= maxFail {
			want = true
			run = 0
			alerts++
		}
		require.Equal(t, want, res.Triggered, "cycle %d", i+1)
		require.Equal(t, run, res.Failures, "cycle %d", i+1)
		require.Less(t, res.Failures, maxFail)
	}
	assert.Equal(t, alerts, a.calls)
}

func TestHeartbeatEveryHundredCycles(t *testing.T) {
	pulse := &recordPulse{}
	l, _ := newLoop(t, Config{MaxFail: 5}, &script{outcomes: []bool{true}}, &countAlerter{}, WithPulse(pulse))

	var beats []uint64
	for _, res := range steps(t, l, 250) {
		if res.Heartbeat {
			beats = append(beats, res.Cycle)
		}
	}
	assert.Equal(t, []uint64{100, 200}, beats)
	assert.Equal(t, 250, pulse.beats)
	assert.Len(t, pulse.statuses, 2)
}

func TestHeartbeatPeriodOverride(t *testing.T) {
	l, _ := newLoop(t, Config{MaxFail: 5, HeartbeatPeriod: 3}, &script{outcomes: []bool{true}}, &countAlerter{})
	var beats []uint64
	for _, res := range steps(t, l, 10) {
		if res.Heartbeat {
			beats = append(beats, res.Cycle)
		}
	}
	assert.Equal(t, []uint64{3, 6, 9}, beats)
}

func TestWaitIntervalFollowsOutcome(t *testing.T) {
	cfg := Config{MaxFail: 10, SuccessInterval: 10 * time.Second, FailureInterval: 2 * time.Second}
	l, s := newLoop(t, cfg, &script{outcomes: []bool{true, false, false, true}}, &countAlerter{})
	steps(t, l, 4)
	assert.Equal(t, []time.Duration{10 * time.Second, 2 * time.Second, 2 * time.Second, 10 * time.Second}, s.waits)
}

func TestTriggerHappensAfterWait(t *testing.T) {
	var order []string
	p := probe.Func(func(context.Context, string) (bool, error) {
		order = append(order, "probe")
		return false, nil
	})
	sleeper := SleepFunc(func(context.Context, time.Duration) error {
		order = append(order, "sleep")
		return nil
	})
	a := AlertFunc(func(context.Context) { order = append(order, "alert") })
	l, err := New(Config{Host: "h", MaxFail: 1}, p, a, WithSleeper(sleeper))
	require.NoError(t, err)

	_, err = l.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"probe", "sleep", "alert"}, order)
}

func TestProbeErrorCountsAsFailure(t *testing.T) {
	var buf bytes.Buffer
	p := probe.Func(func(context.Context, string) (bool, error) {
		return false, errors.New("ping: exec format error: " + probe.ErrUnavailable.Error())
	})
	unavailable := probe.Func(func(context.Context, string) (bool, error) {
		return true, probe.ErrUnavailable
	})

	l, _ := newLoop(t, Config{MaxFail: 5}, p, &countAlerter{})
	res := steps(t, l, 1)[0]
	assert.False(t, res.Reachable)
	assert.Equal(t, 1, res.Failures)

	l, _ = newLoop(t, Config{MaxFail: 5}, unavailable, &countAlerter{}, WithLogger(logx.NewWriter(&buf, "debug")))
	res = steps(t, l, 1)[0]
	assert.False(t, res.Reachable, "an error overrides the reported result")
	assert.True(t, hasCritical(t, buf.String(), "probe mechanism unavailable"))
}

func TestPanicsAreContained(t *testing.T) {
	p := probe.Func(func(context.Context, string) (bool, error) { panic("boom") })
	a := AlertFunc(func(context.Context) { panic("alert boom") })
	l, _ := newLoop(t, Config{MaxFail: 1}, p, a)

	res := steps(t, l, 1)[0]
	assert.False(t, res.Reachable)
	assert.True(t, res.Triggered)
	assert.Zero(t, l.Failures())
}

func TestCancelDuringWaitSkipsTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &countAlerter{}
	sleeper := SleepFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	l, err := New(Config{Host: "h", MaxFail: 1}, &script{outcomes: []bool{false}}, a, WithSleeper(sleeper))
	require.NoError(t, err)

	_, err = l.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, a.calls)
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	a := &countAlerter{}
	l, err := New(Config{Host: "h", MaxFail: 3, SuccessInterval: time.Hour}, &script{outcomes: []bool{true}}, a)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestLogsTriggerAndFailures(t *testing.T) {
	var buf bytes.Buffer
	l, _ := newLoop(t, Config{MaxFail: 2}, &script{outcomes: []bool{false}}, &countAlerter{},
		WithLogger(logx.NewWriter(&buf, "debug")))
	steps(t, l, 2)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "host did not respond"))
	assert.Contains(t, out, "trigger engaged")
	assert.Contains(t, out, `"trigger_id"`)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}

func hasCritical(t *testing.T, out, msg string) bool {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec["critical"] == true && strings.Contains(rec["message"].(string), msg) {
			return true
		}
	}
	return false
}
