package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	indexLockFile = "index.lock"
	lockTimeout   = 5 * time.Second
	lockRetryWait = 500 * time.Millisecond
)

// indexLock guards the local bleve lexical index against two
// concurrent cmd/indexer runs racing to rebuild it. Adapted from the
// PID-file discipline krakend-mcp-server uses for its own
// doc-search index: write our PID, refuse to proceed while another
// live process holds the file, and reclaim it automatically if the
// holder is gone.
type indexLock struct {
	dir    string
	logger *slog.Logger
}

func newIndexLock(dir string, logger *slog.Logger) *indexLock {
	return &indexLock{dir: dir, logger: logger}
}

func (l *indexLock) path() string {
	return filepath.Join(l.dir, indexLockFile)
}

func (l *indexLock) acquire() error {
	ourPID := os.Getpid()

	if data, err := os.ReadFile(l.path()); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == ourPID {
			return nil
		}
	}

	start := time.Now()
	for {
		if err := l.cleanStale(); err != nil {
			if time.Since(start) >= lockTimeout {
				return fmt.Errorf("store: timeout waiting for index lock after %v: %w", time.Since(start), err)
			}
			time.Sleep(lockRetryWait)
			continue
		}

		if err := os.WriteFile(l.path(), []byte(strconv.Itoa(ourPID)), 0o644); err != nil {
			return fmt.Errorf("store: failed to write index lock: %w", err)
		}
		return nil
	}
}

func (l *indexLock) release() error {
	data, err := os.ReadFile(l.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: failed to read index lock: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid != os.Getpid() {
		l.logger.Warn("index lock held by a different pid, not releasing", "held_by", pid, "our_pid", os.Getpid())
		return nil
	}

	if err := os.Remove(l.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: failed to remove index lock: %w", err)
	}
	return nil
}

// cleanStale removes the lock file if the PID it names is no longer
// running. Returns an error (without removing the file) if the
// holder is still alive.
func (l *indexLock) cleanStale() error {
	data, err := os.ReadFile(l.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: failed to read index lock: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		l.logger.Warn("corrupted index lock file, removing", "content", pidStr)
		return os.Remove(l.path())
	}

	if processAlive(pid) {
		return fmt.Errorf("store: index lock held by live process %d", pid)
	}

	l.logger.Warn("removing stale index lock", "pid", pid)
	return os.Remove(l.path())
}
