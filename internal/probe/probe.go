// Package probe implements host reachability checks.
//
// A Prober answers one question per call: did the host respond? Ordinary
// negative results (no reply, timeout, refused connection) are reported as
// (false, nil). An error is returned only when the probing mechanism itself
// is unusable, and it wraps ErrUnavailable.
package probe

import (
	"context"
	"errors"
)

// ErrUnavailable means the probe could not run at all (e.g. the ping binary is
// missing). Callers must treat the host as unreachable.
var ErrUnavailable = errors.New("probe mechanism unavailable")

type Prober interface {
	Probe(ctx context.Context, host string) (bool, error)
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context, host string) (bool, error)

func (f Func) Probe(ctx context.Context, host string) (bool, error) { return f(ctx, host) }
