package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrLocked means another live process already quotes the same symbol from the same state dir.
var ErrLocked = errors.New("instance lock held")

// InstanceLock guards one (state dir, symbol) pair. Two makers on the same
// market would cancel each other's orders every cycle.
type InstanceLock struct {
	path string
	file *os.File
}

type LockOptions struct {
	Takeover   bool
	StaleAfter time.Duration
	Now        func() time.Time
}

type lockOwner struct {
	pid       int
	symbol    string
	startedAt time.Time
}

func LockPath(dir, symbol string) string {
	return filepath.Join(dir, strings.ToLower(symbol)+".lock")
}

func AcquireInstanceLock(dir, symbol string, opts LockOptions) (*InstanceLock, error) {
	if dir == "" || symbol == "" {
		return nil, errors.New("lock requires state dir and symbol")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	path := LockPath(dir, symbol)

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			owner := lockOwner{pid: os.Getpid(), symbol: symbol, startedAt: now().UTC()}
			if err := writeOwner(f, owner); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, err
			}
			return &InstanceLock{path: path, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if !opts.Takeover {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		stale, reason, err := isStale(path, now().UTC(), opts.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (stale check: %v)", ErrLocked, path, err)
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, path, reason)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

func (l *InstanceLock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *InstanceLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeOwner(f *os.File, owner lockOwner) error {
	var b strings.Builder
	b.WriteString("pid=" + strconv.Itoa(owner.pid) + "\n")
	b.WriteString("symbol=" + owner.symbol + "\n")
	b.WriteString("started_at=" + owner.startedAt.Format(time.RFC3339) + "\n")
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return f.Sync()
}

// isStale decides whether an existing lock may be taken over. A recorded pid is
// authoritative; without one, the lock expires after staleAfter.
func isStale(path string, now time.Time, staleAfter time.Duration) (bool, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "lock_disappeared", nil
		}
		return false, "", err
	}
	owner, err := parseOwner(data)
	if err != nil {
		return false, "", err
	}
	if owner.pid > 0 {
		if processAlive(owner.pid) {
			return false, "owner_process_running", nil
		}
		return true, "owner_process_not_running", nil
	}
	if owner.startedAt.IsZero() {
		return false, "missing_lock_owner_info", nil
	}
	if staleAfter > 0 && now.Sub(owner.startedAt) >= staleAfter {
		return true, "lock_age_exceeded", nil
	}
	return false, "lock_not_stale", nil
}

func parseOwner(data []byte) (lockOwner, error) {
	var owner lockOwner
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				owner.pid = pid
			}
		case "symbol":
			owner.symbol = value
		case "started_at":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				owner.startedAt = ts.UTC()
			}
		}
	}
	return owner, scanner.Err()
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// exists but owned by another user
		return true
	default:
		return false
	}
}
