package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/axondata/go-sup"
)

func startDaemon(t *testing.T, pid uint32) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "supctl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	tp := sup.NewUnixTransport(path, sup.WithTransportLogger(zerolog.Nop()))
	h := sup.RejectUnknown(sup.HandlerFunc(func(_ context.Context, req sup.Request) sup.Response {
		return sup.NewResponse(req.Cmd.String()+" done", pid)
	}))
	srv := sup.NewServer(tp, h, sup.WithServerLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
	return path
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"-s", "/nonexistent.sock", "halt"}},
		{"two commands", []string{"start", "stop"}},
		{"bad flag", []string{"--bogus", "status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.Equal(t, exitUsage, run(tt.args, &stdout, &stderr))
			require.Empty(t, stdout.String())
			require.Contains(t, stderr.String(), "supctl:")
		})
	}
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"--version"}, &stdout, &stderr))
	require.Contains(t, stdout.String(), sup.Version)
	require.Contains(t, stdout.String(), sup.ProtocolVersion)
}

func TestHelpListsCommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"--help"}, &stdout, &stderr))
	for _, cmd := range sup.Commands() {
		require.Contains(t, stdout.String(), cmd.Description())
	}
}

func TestSendStatus(t *testing.T) {
	socket := startDaemon(t, 4242)

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-s", socket, "status"}, &stdout, &stderr), stderr.String())
	require.Equal(t, "status done, pid is 4242\n", stdout.String())
}

func TestSendManySockets(t *testing.T) {
	a := startDaemon(t, 1)
	b := startDaemon(t, 2)

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-s", a, "--socket", b, "stop"}, &stdout, &stderr), stderr.String())
	require.Contains(t, stdout.String(), a+": stop done, pid is 1\n")
	require.Contains(t, stdout.String(), b+": stop done, pid is 2\n")
}

func TestSocketFromConfig(t *testing.T) {
	socket := startDaemon(t, 9)

	cfgPath := filepath.Join(t.TempDir(), "sup.toml")
	content := "[sup]\nsocket = \"" + socket + "\"\n[program]\ncommand = \"/bin/true\"\n"
	require.NoError(t, renameio.WriteFile(cfgPath, []byte(content), 0o644))

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"-c", cfgPath, "start"}, &stdout, &stderr), stderr.String())
	require.Equal(t, "start done, pid is 9\n", stdout.String())
}

func TestDaemonUnreachable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	socket := filepath.Join(t.TempDir(), "absent.sock")
	require.Equal(t, exitFailure, run([]string{"-s", socket, "--timeout", "5s", "status"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "connect failed")
}
