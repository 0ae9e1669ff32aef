// Package lock provides host-wide mutual exclusion for agent creation.
//
// The lock is a directory at a well-known path. Creating a directory is atomic
// at the OS level, so exactly one of any number of concurrent creators wins.
// The winner publishes an owner record (pid, random token, acquisition time)
// inside it. Waiters read that record to decide whether the owner is gone
// (dead pid, or a live pid holding it past StaleAfter) and the lock can be
// reclaimed.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDirName is the lock directory name used under the system temp dir.
const DefaultDirName = "agent-creation.lock"

// maxImmediateRetries bounds the reclaim-and-retry loop of a single attempt.
const maxImmediateRetries = 8

// ErrCorrupted means the lock directory holds no readable owner record and a
// forced removal did not lead to a successful acquisition.
var ErrCorrupted = errors.New("lock directory corrupted")

// errBusy signals a retryable "held by a live owner" outcome to the poller.
var errBusy = errors.New("lock busy")

// ContendedError is returned when the lock stays held by a live owner until
// the wait timeout expires.
type ContendedError struct {
	Path   string
	Owner  *OwnerRecord // nil while the owner was still publishing its record
	Waited time.Duration
}

func (e *ContendedError) Error() string {
	if e.Owner != nil {
		return fmt.Sprintf("lock %s is held by pid %d since %s (waited %s)",
			e.Path, e.Owner.PID, e.Owner.AcquiredAt.Format(time.RFC3339), e.Waited.Round(time.Millisecond))
	}
	return fmt.Sprintf("lock %s is held (waited %s)", e.Path, e.Waited.Round(time.Millisecond))
}

// Manager acquires and inspects the lock directory at Dir.
type Manager struct {
	Dir string
	// StaleAfter is the age past which even a live owner is considered to have
	// abandoned the lock. Zero disables the age policy.
	StaleAfter time.Duration
	// CorruptGrace is how long a lock directory without a readable owner
	// record is treated as "owner still publishing" before it counts as
	// corrupted.
	CorruptGrace   time.Duration
	Now            func() time.Time
	IsProcessAlive func(pid int) bool
	PID            int
	NewToken       func() string
	Logger         zerolog.Logger
	// OnReclaim, if set, is called after a dead, expired or corrupted lock
	// was removed. owner is nil for a corrupted lock.
	OnReclaim func(owner *OwnerRecord, reason string)
}

// NewManager returns a Manager for dir with defaults:
//   - StaleAfter: 10m
//   - CorruptGrace: 2s
//   - IsProcessAlive: signal-0 check
//   - PID: os.Getpid()
func NewManager(dir string, logger zerolog.Logger) *Manager {
	return &Manager{
		Dir:            dir,
		StaleAfter:     10 * time.Minute,
		CorruptGrace:   2 * time.Second,
		Now:            time.Now,
		IsProcessAlive: IsProcessAlive,
		PID:            os.Getpid(),
		NewToken:       uuid.NewString,
		Logger:         logger,
	}
}

// DefaultDir returns the well-known lock path under the system temp dir.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), DefaultDirName)
}

// Handle is a held lock. Release it exactly once via defer.
type Handle struct {
	m        *Manager
	owner    OwnerRecord
	mu       sync.Mutex
	released bool
}

// Owner returns the record published by this acquisition.
func (h *Handle) Owner() OwnerRecord {
	return h.owner
}

// Path returns the lock directory path.
func (h *Handle) Path() string {
	return h.m.Dir
}

// Acquire takes the lock, waiting up to timeout for a live owner to release
// it, re-checking every poll. A timeout of zero fails immediately when the
// lock is held. Dead or expired owners are reclaimed without waiting.
//
// Errors: *ContendedError on timeout, ErrCorrupted (wrapped) when the lock
// cannot be recovered, ctx.Err() on cancellation, or an I/O error.
func (m *Manager) Acquire(ctx context.Context, timeout, poll time.Duration) (*Handle, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	start := m.Now()
	deadline := start.Add(timeout)

	var (
		held      *Handle
		lastOwner *OwnerRecord
		recovered bool
	)

	attempt := func() error {
		h, owner, err := m.tryAcquire(&recovered)
		if err != nil {
			return backoff.Permanent(err)
		}
		if h != nil {
			held = h
			return nil
		}
		lastOwner = owner
		if now := m.Now(); !now.Before(deadline) {
			return backoff.Permanent(&ContendedError{Path: m.Dir, Owner: lastOwner, Waited: now.Sub(start)})
		}
		return errBusy
	}

	notify := func(_ error, next time.Duration) {
		ev := m.Logger.Debug().Str("lock", m.Dir).Dur("retry_in", next)
		if lastOwner != nil {
			ev = ev.Int("owner_pid", lastOwner.PID)
		}
		ev.Msg("waiting for lock")
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(poll), ctx)
	if err := backoff.RetryNotify(attempt, b, notify); err != nil {
		return nil, err
	}
	return held, nil
}

// tryAcquire makes one acquisition attempt, reclaiming dead, expired or
// corrupted locks along the way. It returns a handle on success, or the
// current owner (possibly nil) when the lock is actively held.
func (m *Manager) tryAcquire(recovered *bool) (*Handle, *OwnerRecord, error) {
	if err := os.MkdirAll(filepath.Dir(m.Dir), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating lock parent directory: %w", err)
	}

	for i := 0; i < maxImmediateRetries; i++ {
		err := os.Mkdir(m.Dir, 0o755)
		if err == nil {
			h, err := m.claim()
			if err != nil {
				return nil, nil, err
			}
			if h != nil {
				return h, nil, nil
			}
			continue
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, nil, fmt.Errorf("creating lock directory: %w", err)
		}

		owner, readErr := readOwner(m.Dir)
		if readErr != nil {
			info, statErr := os.Stat(m.Dir)
			if errors.Is(statErr, fs.ErrNotExist) {
				continue // released between mkdir and read
			}
			if statErr != nil {
				return nil, nil, fmt.Errorf("inspecting lock directory: %w", statErr)
			}
			if m.Now().Sub(info.ModTime()) < m.CorruptGrace {
				return nil, nil, nil
			}
			if *recovered {
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, m.Dir, readErr)
			}
			*recovered = true
			m.Logger.Warn().Str("lock", m.Dir).Err(readErr).Msg("removing corrupted lock")
			ok, err := m.reclaim(nil)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				m.notifyReclaim(nil, "corrupted: "+readErr.Error())
			}
			continue
		}

		if reason := m.staleReason(owner); reason != "" {
			m.Logger.Info().
				Str("lock", m.Dir).
				Int("owner_pid", owner.PID).
				Time("acquired_at", owner.AcquiredAt).
				Str("reason", reason).
				Msg("reclaiming stale lock")
			ok, err := m.reclaim(&owner)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				m.notifyReclaim(&owner, reason)
			}
			continue
		}
		return nil, &owner, nil
	}
	return nil, nil, nil
}

func (m *Manager) notifyReclaim(owner *OwnerRecord, reason string) {
	if m.OnReclaim != nil {
		m.OnReclaim(owner, reason)
	}
}

// claim publishes this process's owner record into a directory it just
// created and verifies it reads back. A nil handle without error means the
// directory was taken over in between and the caller should retry.
func (m *Manager) claim() (*Handle, error) {
	rec := OwnerRecord{
		PID:        m.PID,
		Token:      m.NewToken(),
		AcquiredAt: m.Now(),
	}
	if err := writeOwner(m.Dir, rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		_ = os.RemoveAll(m.Dir)
		return nil, fmt.Errorf("writing lock owner record: %w", err)
	}
	cur, err := readOwner(m.Dir)
	if err != nil || !cur.Same(rec) {
		return nil, nil
	}
	return &Handle{m: m, owner: rec}, nil
}

// staleReason returns why owner no longer holds the lock, or "" if it does.
func (m *Manager) staleReason(owner OwnerRecord) string {
	if !m.IsProcessAlive(owner.PID) {
		return "owner process is not running"
	}
	if m.StaleAfter > 0 && m.Now().Sub(owner.AcquiredAt) > m.StaleAfter {
		return fmt.Sprintf("held longer than %s", m.StaleAfter)
	}
	return ""
}

// reclaim removes the lock directory on behalf of a dead or corrupted owner.
// It re-reads the record first and backs off if the lock changed hands (a
// new owner published a record, or the expected one was replaced). The
// directory is renamed to a unique tombstone before deletion so that two
// concurrent reclaimers cannot both act on it; the interval between the
// re-check and the rename remains an accepted race window. It reports
// whether this call removed the directory.
func (m *Manager) reclaim(expected *OwnerRecord) (bool, error) {
	cur, err := readOwner(m.Dir)
	if expected != nil {
		if err != nil || !cur.Same(*expected) {
			return false, nil
		}
	} else if err == nil {
		return false, nil
	}

	tomb := fmt.Sprintf("%s.stale-%s", m.Dir, uuid.NewString())
	if err := os.Rename(m.Dir, tomb); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("removing stale lock: %w", err)
	}
	if err := os.RemoveAll(tomb); err != nil {
		return true, fmt.Errorf("removing stale lock: %w", err)
	}
	return true, nil
}

// Release removes the lock directory if this handle still owns it. Releasing
// a lock owned by someone else logs a warning and leaves it in place.
// Subsequent calls are no-ops.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	cur, err := readOwner(h.m.Dir)
	if err != nil || !cur.Same(h.owner) {
		ev := h.m.Logger.Warn().Str("lock", h.m.Dir).Int("pid", h.owner.PID)
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int("owner_pid", cur.PID)
		}
		ev.Msg("lock is not owned by this handle; leaving it in place")
		return nil
	}
	if err := os.RemoveAll(h.m.Dir); err != nil {
		return fmt.Errorf("removing lock directory: %w", err)
	}
	return nil
}
