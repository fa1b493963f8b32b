package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ICMP sends a single echo request by running the system ping tool.
type ICMP struct {
	// Path of the ping binary. Defaults to "ping" resolved through PATH.
	Path string
	// Timeout bounds one probe; the ping process is killed when it expires.
	// Zero leaves the timeout to the ping tool.
	Timeout time.Duration
	// GOOS overrides the platform used to pick ping flags.
	GOOS string
}

func (p ICMP) Probe(ctx context.Context, host string) (bool, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return false, nil
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	name, args := p.command(host)
	err := exec.CommandContext(ctx, name, args...).Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		// Non-zero exit or killed on timeout: no reply.
		return false, nil
	case ctx.Err() != nil:
		return false, nil
	default:
		// The process never started (missing binary, permissions).
		return false, fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
}

func (p ICMP) command(host string) (string, []string) {
	name := p.Path
	if name == "" {
		name = "ping"
	}
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return name, []string{"-n", "1", host}
	}
	return name, []string{"-c", "1", host}
}
