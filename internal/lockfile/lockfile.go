// Package lockfile provides cooperative cross-process file locking with
// stale-lock reclamation.
//
// A lock on a path P is a sidecar file P.lock whose body is the acquisition
// wall-clock time in ASCII decimal milliseconds. Acquisition relies on
// O_CREAT|O_EXCL being honored by the host filesystem, which holds on local
// disks. A sidecar older than the stale timeout is presumed abandoned by a
// crashed holder and is reclaimed.
//
// Locks are advisory: every writer of a shared file must go through this
// package for the exclusion to mean anything.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/logging"
)

// Suffix is appended to a protected path to form its lock sidecar path.
const Suffix = ".lock"

// Defaults for acquisition behavior.
const (
	// DefaultAcquireTimeout is how long Acquire waits before giving up.
	DefaultAcquireTimeout = 10 * time.Second
	// DefaultStaleTimeout is the age past which a held sidecar is presumed
	// abandoned and reclaimed.
	DefaultStaleTimeout = 10 * time.Second
	// DefaultPollInterval is the sleep between acquisition attempts while
	// the lock is held by someone else.
	DefaultPollInterval = 50 * time.Millisecond
)

// options holds tunable acquisition behavior.
type options struct {
	staleTimeout time.Duration
	pollInterval time.Duration
	logger       *logging.Logger
}

// Option configures lock acquisition.
type Option func(*options)

// WithStaleTimeout overrides the age past which a sidecar is reclaimed.
func WithStaleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleTimeout = d
		}
	}
}

// WithPollInterval overrides the sleep between acquisition attempts.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLogger attaches a logger for stale-reclaim warnings.
// Acquisition works without one.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() options {
	return options{
		staleTimeout: DefaultStaleTimeout,
		pollInterval: DefaultPollInterval,
	}
}

// SidecarPath returns the lock sidecar path for a protected path.
func SidecarPath(path string) string {
	return path + Suffix
}

// ParseTimestamp parses a sidecar body as epoch milliseconds.
// Returns false if the body is not a decimal integer.
func ParseTimestamp(body []byte) (time.Time, bool) {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Handle represents an acquired lock. Release it exactly once; extra
// releases are no-ops.
type Handle struct {
	sidecar string

	mu       sync.Mutex
	released bool
}

// SidecarPath returns the path of the sidecar file backing this handle.
func (h *Handle) SidecarPath() string {
	return h.sidecar
}

// Release unlinks the sidecar. A missing sidecar is not an error: it may
// have been reclaimed as stale by another process. Safe to call multiple
// times and on a nil handle.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	if err := os.Remove(h.sidecar); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Acquire takes the lock for path, waiting up to timeout. A non-positive
// timeout uses DefaultAcquireTimeout.
//
// On contention the sidecar body decides the outcome: a parseable timestamp
// older than the stale timeout is reclaimed and retried immediately, an
// unreadable sidecar is retried immediately (the holder likely released in
// between), and anything else counts as held. Held locks are polled until
// the deadline, after which Acquire fails with a lock-timeout error naming
// the protected path.
func Acquire(path string, timeout time.Duration, opts ...Option) (*Handle, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	sidecar := SidecarPath(path)
	if err := os.MkdirAll(filepath.Dir(sidecar), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		created, err := tryCreate(sidecar)
		if err != nil {
			return nil, err
		}
		if created {
			return &Handle{sidecar: sidecar}, nil
		}

		body, readErr := os.ReadFile(sidecar)
		if readErr != nil {
			// The holder released between our create attempt and the read.
			if time.Now().After(deadline) {
				return nil, errors.NewLockTimeoutError(path, timeout)
			}
			continue
		}

		if ts, ok := ParseTimestamp(body); ok && time.Since(ts) > o.staleTimeout {
			if o.logger != nil {
				o.logger.Warn("stale lock reclaimed",
					"path", path,
					"age_ms", time.Since(ts).Milliseconds(),
				)
			}
			if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to remove stale lock: %w", err)
			}
			if time.Now().After(deadline) {
				return nil, errors.NewLockTimeoutError(path, timeout)
			}
			continue
		}

		// Held, or unparseable but not provably stale.
		if time.Now().After(deadline) {
			return nil, errors.NewLockTimeoutError(path, timeout)
		}
		time.Sleep(o.pollInterval)
	}
}

// tryCreate attempts exclusive creation of the sidecar with the current
// time as its body. Returns false without error when the sidecar already
// exists.
func tryCreate(sidecar string) (bool, error) {
	f, err := os.OpenFile(sidecar, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file: %w", err)
	}

	body := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		_ = os.Remove(sidecar)
		return false, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(sidecar)
		return false, fmt.Errorf("failed to close lock file: %w", err)
	}
	return true, nil
}

// WithLock runs fn while holding the lock for path and releases it on every
// exit path, including panics.
func WithLock(path string, timeout time.Duration, fn func() error, opts ...Option) error {
	handle, err := Acquire(path, timeout, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Release() }()

	return fn()
}
