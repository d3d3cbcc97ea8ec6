package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

var ErrLockTimeout = errors.New("state lock timeout")

const lockPollInterval = 50 * time.Millisecond

// withLock runs fn while holding an exclusive flock on the file beside the
// state file.
func withLock(fn func() error) error {
	path := stateFilePath()
	if path == "" {
		return errors.New("state directory unavailable")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open state lock: %w", err)
	}
	defer lock.Close()

	if err := flockWithin(lock, lockTimeout()); err != nil {
		return err
	}
	defer func() {
		_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func flockWithin(lock *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, syscall.EWOULDBLOCK):
			return fmt.Errorf("lock state: %w", err)
		case time.Now().After(deadline):
			return ErrLockTimeout
		}
		time.Sleep(lockPollInterval)
	}
}

func lockTimeout() time.Duration {
	if seconds, err := strconv.Atoi(os.Getenv("QFORIA_LOCK_TIMEOUT")); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 10 * time.Second
}

// writeFileAtomic replaces path through a synced temp file in the same
// directory.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// stateFilePath honours QFORIA_STATE_FILE, then QFORIA_STATE_DIR, then
// ~/.config/qforia.
func stateFilePath() string {
	if value := os.Getenv("QFORIA_STATE_FILE"); value != "" {
		return value
	}
	dir := os.Getenv("QFORIA_STATE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return ""
		}
		dir = filepath.Join(home, ".config", "qforia")
	}
	return filepath.Join(dir, "state.json")
}

func processAlive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}

func terminateProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
