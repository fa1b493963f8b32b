package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

const defaultTCPTimeout = 5 * time.Second

// TCP reports a host reachable when a connection to Port is accepted.
type TCP struct {
	Port    int
	Timeout time.Duration
}

func (p TCP) Probe(ctx context.Context, host string) (bool, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return false, nil
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTCPTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(p.Port)))
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}
