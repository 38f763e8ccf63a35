package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	writeLockName  = "write.lock"
	syncLockName   = "sync.lock"
	defaultTimeout = 500 * time.Millisecond
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 50 * time.Millisecond
)

// ErrLockHeld is returned by a non-blocking acquire when another process holds the lock
var ErrLockHeld = errors.New("lock held by another process")

// fileLock is an exclusive OS file lock. The kernel drops it when the
// holding process exits, so a crash never leaves the store locked.
type fileLock struct {
	path string
	f    *os.File
}

func newFileLock(dir, name string) *fileLock {
	return &fileLock{path: filepath.Join(dir, dataDir, name)}
}

func (l *fileLock) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.f = f
	return nil
}

// acquire waits up to timeout for the lock, backing off exponentially
func (l *fileLock) acquire(timeout time.Duration) error {
	if err := l.open(); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff
	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}
		if time.Now().After(deadline) {
			holder := l.readHolder()
			l.f.Close()
			l.f = nil
			return fmt.Errorf("lock %s timeout after %v (holder %s)", filepath.Base(l.path), timeout, holder)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

// tryAcquire takes the lock without waiting. Returns ErrLockHeld when busy.
func (l *fileLock) tryAcquire() error {
	if err := l.open(); err != nil {
		return err
	}
	if err := l.tryLock(); err != nil {
		l.f.Close()
		l.f = nil
		return ErrLockHeld
	}
	l.writeHolder()
	return nil
}

func (l *fileLock) release() {
	if l.f == nil {
		return
	}
	l.f.Truncate(0)
	l.unlock()
	l.f.Close()
	l.f = nil
}

func (l *fileLock) writeHolder() {
	l.f.Truncate(0)
	l.f.Seek(0, 0)
	fmt.Fprintf(l.f, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.f.Sync()
}

// readHolder describes the current holder for lock timeout errors
func (l *fileLock) readHolder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}

	var pid, since string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			since = v
		}
	}
	if pid == "" {
		return "unknown"
	}
	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid:%s since %s (stale)", pid, since)
	}
	return fmt.Sprintf("pid:%s since %s", pid, since)
}

// withWriteLock runs fn while holding the store's write lock so separate
// sz processes never interleave writes. Goroutines of one process queue on
// writeMu first, so the lock timeout only ever counts time spent waiting on
// another process.
func (db *DB) withWriteLock(fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	l := newFileLock(db.baseDir, writeLockName)
	if err := l.acquire(defaultTimeout); err != nil {
		return err
	}
	defer l.release()
	return fn()
}

// TrySyncLock takes the cross-process push lock without waiting. The
// returned func releases it. ErrLockHeld means another sz process is pushing.
func (db *DB) TrySyncLock() (func(), error) {
	l := newFileLock(db.baseDir, syncLockName)
	if err := l.tryAcquire(); err != nil {
		return nil, err
	}
	return l.release, nil
}
