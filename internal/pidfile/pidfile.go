// Package pidfile records the daemon's PID so a second supd on the same
// configuration refuses to start instead of stealing the control socket.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/axondata/go-sup/internal/unix"
)

// ErrRunning indicates the PID file names a live process other than the caller
var ErrRunning = errors.New("pidfile: daemon already running")

// Write atomically replaces the file at path with pid
func Write(path string, pid int) error {
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing pid file %s: %w", path, err)
	}
	return nil
}

// Read returns the PID recorded at path
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s: malformed content %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Acquire writes pid to path unless the file already names another live
// process. Missing, malformed and stale files are overwritten.
func Acquire(path string, pid int) error {
	if existing, err := Read(path); err == nil && existing != pid && unix.Alive(existing) {
		return fmt.Errorf("%w: pid %d (from %s)", ErrRunning, existing, path)
	}
	return Write(path, pid)
}

// Release removes the file at path if it still records pid
func Release(path string, pid int) error {
	existing, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if existing != pid {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
