package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"deadman/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func writeConfig(t *testing.T, dir, level, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "ping_host": "127.0.0.1",
  "max_fail": 2,
  "sleep": {"success": "10ms", "fail": "10ms"},
  "probe": {"kind": "tcp", "port": %d, "timeout": "1s"},
  "mail": {
    "server": "127.0.0.1:%d",
    "origin": "deadman@example.com",
    "destination": "ops@example.com",
    "subject": "host down",
    "message": "127.0.0.1 stopped answering",
    "timeout": "1s"
  },
  "systemd": {"enabled": false},
  %s
  "logging": {"level": %q, "console": false, "file": {"enabled": true, "path": %q}}
}`, closedPort(t), closedPort(t), extra, level, filepath.Join(dir, "deadman.log"))
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func stopCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewMissingConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ping_host": "10.0.0.1", "max_fail": 0}`), 0o644))
	_, err := New(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewBuildsTelegramNotifier(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "info", `"telegram": {"enabled": true, "token": "123:abc", "chat_id": -1001},`)
	a, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(stopCtx(t), StopAppStop) })

	group := a.Notifiers()
	require.Len(t, group, 2)
	assert.Equal(t, "smtp", group[0].Relay().Name())
	assert.Equal(t, "telegram", group[1].Relay().Name())

	msgs := group[1].Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, strconv.Itoa(-1001), msgs[0].Destination)
	assert.Equal(t, "host down", msgs[0].Subject)
}

func TestRunAlertsWhenHostIsDown(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, "debug", ""))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	mail := a.Notifiers()[0]
	require.Eventually(t, func() bool { return len(mail.History()) > 0 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.Stop(stopCtx(t), StopSIGTERM))
	assert.GreaterOrEqual(t, a.Loop().Triggers(), 1)

	rep := mail.History()[0]
	assert.False(t, rep.Connected)
	assert.Error(t, rep.ConnectErr)

	logs, err := os.ReadFile(filepath.Join(dir, "deadman.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logs), "trigger engaged")
	assert.Contains(t, string(logs), "relay connection failed")
}

func TestReloadAppliesLogging(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "info", "")
	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(stopCtx(t), StopAppStop) })

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "warn", "")

	require.Eventually(t, func() bool { return a.logs.Config().Level == "warn" }, 5*time.Second, 20*time.Millisecond)
}

func TestStartTwice(t *testing.T) {
	a, err := New(writeConfig(t, t.TempDir(), "info", ""))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(stopCtx(t), StopAppStop) })
	assert.Error(t, a.Start(context.Background()))
}

func TestReasonForSignal(t *testing.T) {
	assert.Equal(t, StopSIGINT, ReasonForSignal(os.Interrupt))
	assert.Equal(t, StopSIGTERM, ReasonForSignal(syscall.SIGTERM))
	assert.Equal(t, StopUnknown, ReasonForSignal(syscall.SIGHUP))
}
