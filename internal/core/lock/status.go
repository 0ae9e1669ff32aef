package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// State classifies what Inspect found at the lock path.
type State string

const (
	StateFree      State = "free"
	StateHeld      State = "held"
	StateStale     State = "stale"
	StateCorrupted State = "corrupted"
)

// Status is a read-only snapshot of the lock directory.
type Status struct {
	Path   string        `json:"path"`
	State  State         `json:"state"`
	Owner  *OwnerRecord  `json:"owner,omitempty"`
	Age    time.Duration `json:"age,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Inspect reports the lock state without modifying anything.
func (m *Manager) Inspect() (Status, error) {
	st := Status{Path: m.Dir, State: StateFree}

	info, err := os.Stat(m.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("inspecting lock directory: %w", err)
	}

	owner, err := readOwner(m.Dir)
	if err != nil {
		st.Age = m.Now().Sub(info.ModTime())
		if st.Age < m.CorruptGrace {
			st.State = StateHeld
			st.Reason = "owner record not yet published"
			return st, nil
		}
		st.State = StateCorrupted
		st.Reason = err.Error()
		return st, nil
	}

	st.Owner = &owner
	st.Age = m.Now().Sub(owner.AcquiredAt)
	if reason := m.staleReason(owner); reason != "" {
		st.State = StateStale
		st.Reason = reason
		return st, nil
	}
	st.State = StateHeld
	return st, nil
}

// Clear removes a stale or corrupted lock. A lock held by a live owner is
// only removed when force is set. It returns the state observed before
// removal.
func (m *Manager) Clear(force bool) (Status, error) {
	st, err := m.Inspect()
	if err != nil {
		return st, err
	}
	switch st.State {
	case StateFree:
		return st, nil
	case StateHeld:
		if !force {
			return st, &ContendedError{Path: m.Dir, Owner: st.Owner}
		}
	}
	if _, err := m.reclaim(st.Owner); err != nil {
		return st, err
	}
	return st, nil
}
