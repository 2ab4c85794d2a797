// Package pid guards against running two dashboards at once.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/solardash/internal/errors"
)

const fileName = "solardash.pid"

// Path returns the location of the PID file
func Path() string {
	return filepath.Join(os.TempDir(), fileName)
}

// Write records the current process ID. It fails with ErrAlreadyRunning
// when the recorded process is still alive; a stale or unreadable record
// is overwritten.
func Write() error {
	errFactory := errors.New()
	path := Path()

	if running, err := recordedAlive(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	} else if running > 0 {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			PID  int
			Path string
		}{
			PID:  running,
			Path: path,
		})
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file if present
func Remove() error {
	if err := os.Remove(Path()); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	return nil
}

// recordedAlive returns the live PID stored at path, or 0
func recordedAlive(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	recorded, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || recorded <= 0 {
		return 0, nil
	}
	if recorded == os.Getpid() {
		return 0, nil
	}

	process, err := os.FindProcess(recorded)
	if err != nil {
		return 0, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, nil
	}

	return recorded, nil
}
