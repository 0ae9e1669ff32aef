package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/barysiuk/agentkit/internal/core/agent"
	"github.com/barysiuk/agentkit/internal/core/fileutil"
	"github.com/barysiuk/agentkit/internal/core/launcher"
	"github.com/barysiuk/agentkit/internal/core/lock"
	"github.com/barysiuk/agentkit/internal/core/oplog"
	"github.com/barysiuk/agentkit/internal/errs"
)

// Operation names written to the operation log.
const (
	OpCreate   = "create_agent"
	OpAcquire  = "acquire_lock"
	OpRender   = "render_template"
	OpPatch    = "patch_launcher"
	OpRelease  = "release_lock"
	OpRollback = "rollback"
)

// Creator runs agent creations against one project.
type Creator struct {
	Settings *Settings
	Locks    *lock.Manager
	Log      *oplog.Log
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewCreator wires a Creator from resolved settings. A nil log discards
// operation records.
func NewCreator(s *Settings, log *oplog.Log, logger zerolog.Logger) *Creator {
	if log == nil {
		log = oplog.Nop()
	}
	m := lock.NewManager(s.LockDir, logger)
	m.StaleAfter = s.StaleAfter
	m.CorruptGrace = s.CorruptGrace
	return &Creator{
		Settings: s,
		Locks:    m,
		Log:      log,
		Logger:   logger,
		Now:      time.Now,
	}
}

// AgentPath returns where the definition of name lives.
func (c *Creator) AgentPath(name string) string {
	return filepath.Join(c.Settings.AgentsDir, name+".md")
}

// Create validates d, takes the creation lock, renders the agent file and
// registers it in the launcher. If the launcher cannot be updated the agent
// file is rolled back: a new file is removed, an overwritten one restored.
// The lock is released on every path. Dry runs go through Plan instead.
func (c *Creator) Create(ctx context.Context, d agent.Descriptor) (res *Result, err error) {
	start := c.Now()
	d = d.WithDefaults(c.Settings.DefaultModel, c.Settings.DefaultEmoji)

	// The outcome is recorded while the lock is still held so that the
	// next owner's records always follow it.
	var h *lock.Handle
	c.Log.Append(oplog.Entry{Operation: OpCreate, AgentName: d.Name, Status: oplog.StatusStarted})
	defer func() {
		e := oplog.Entry{Operation: OpCreate, AgentName: d.Name, Duration: c.Now().Sub(start)}
		if err != nil {
			e.Status = oplog.StatusFailure
			e.Err = err
			e.Fields = map[string]string{"error_class": errs.ClassOf(err).String()}
		} else {
			e.Status = oplog.StatusSuccess
		}
		c.Log.Append(e)
		if h != nil {
			c.release(h, d.Name)
		}
	}()

	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.DryRun {
		return nil, errs.System("dry run requested through Create")
	}

	h, err = c.acquire(ctx, d.Name)
	if err != nil {
		return nil, err
	}

	path := c.AgentPath(d.Name)
	prev, existed, err := readIfExists(path)
	if err != nil {
		return nil, errs.WrapSystem(err, "checking for existing agent")
	}
	if existed && !d.Force {
		return nil, duplicateError(d.Name, path)
	}

	if delay := c.Settings.WorkDelay; delay > 0 {
		c.Logger.Debug().Dur("delay", delay).Msg("holding lock for work delay")
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, errs.WrapSystem(err, "interrupted while holding the lock")
		}
	}

	content, err := c.render(d)
	if err != nil {
		c.Log.Append(oplog.Entry{Operation: OpRender, AgentName: d.Name, Status: oplog.StatusFailure, Err: err})
		return nil, err
	}

	l, err := c.patchLauncher(d)
	if err != nil {
		c.Log.Append(oplog.Entry{Operation: OpPatch, AgentName: d.Name, Status: oplog.StatusFailure, Err: err})
		return nil, err
	}

	if err := fileutil.WriteAtomic(path, content, 0o644); err != nil {
		return nil, errs.WrapSystem(err, "writing agent file %s", path)
	}
	c.Log.Append(oplog.Entry{
		Operation: OpRender,
		AgentName: d.Name,
		Status:    oplog.StatusSuccess,
		Fields:    map[string]string{"path": path},
	})

	if err := l.Save(); err != nil {
		c.rollback(d.Name, path, prev, existed)
		serr := errs.WrapSystem(err, "updating launcher %s", l.Path)
		if errors.Is(err, fileutil.ErrReadOnly) {
			serr = serr.WithHint("make the launcher writable (chmod u+w) and retry")
		}
		c.Log.Append(oplog.Entry{Operation: OpPatch, AgentName: d.Name, Status: oplog.StatusFailure, Err: serr})
		return nil, serr
	}
	c.Log.Append(oplog.Entry{
		Operation: OpPatch,
		AgentName: d.Name,
		Status:    oplog.StatusSuccess,
		Fields:    map[string]string{"changed": fmt.Sprint(l.Changed())},
	})

	return &Result{
		Agent:           d,
		AgentPath:       path,
		Overwritten:     existed,
		LauncherChanged: l.Changed(),
		Duration:        c.Now().Sub(start),
	}, nil
}

// Plan performs every check of Create and computes both outputs in memory.
// It takes no lock and writes nothing, not even the operation log.
func (c *Creator) Plan(_ context.Context, d agent.Descriptor) (*Plan, error) {
	d = d.WithDefaults(c.Settings.DefaultModel, c.Settings.DefaultEmoji)
	if err := d.Validate(); err != nil {
		return nil, err
	}

	path := c.AgentPath(d.Name)
	exists := fileutil.Exists(path)
	if exists && !d.Force {
		return nil, duplicateError(d.Name, path)
	}

	content, err := c.render(d)
	if err != nil {
		return nil, err
	}
	l, err := c.patchLauncher(d)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Agent:           d,
		AgentPath:       path,
		Exists:          exists,
		Content:         string(content),
		LauncherPath:    l.Path,
		LauncherRegions: l.ChangedRegions(),
	}, nil
}

// acquire takes the lock through a per-call copy of the shared Manager. The
// copy carries the reclaim hook for name; c.Locks is never mutated.
func (c *Creator) acquire(ctx context.Context, name string) (*lock.Handle, error) {
	m := *c.Locks
	m.OnReclaim = func(owner *lock.OwnerRecord, reason string) {
		e := oplog.Entry{
			Operation: OpAcquire,
			AgentName: name,
			Status:    oplog.StatusRecovered,
			Fields:    map[string]string{"reason": reason},
		}
		if owner != nil {
			e.Fields["stale_pid"] = fmt.Sprint(owner.PID)
		}
		c.Log.Append(e)
		if c.Locks.OnReclaim != nil {
			c.Locks.OnReclaim(owner, reason)
		}
	}

	start := c.Now()
	h, err := m.Acquire(ctx, c.Settings.LockWait, c.Settings.LockPoll)
	if err == nil {
		c.Log.Append(oplog.Entry{
			Operation: OpAcquire,
			AgentName: name,
			Status:    oplog.StatusSuccess,
			Duration:  c.Now().Sub(start),
			Fields:    map[string]string{"lock": h.Path()},
		})
		return h, nil
	}

	var contended *lock.ContendedError
	switch {
	case errors.As(err, &contended):
		c.Log.Append(oplog.Entry{
			Operation: OpAcquire,
			AgentName: name,
			Status:    oplog.StatusContended,
			Duration:  contended.Waited,
			Fields:    map[string]string{"lock": contended.Path},
		})
		return nil, errs.WrapLock(err, "another agent creation holds the lock").
			WithHint(fmt.Sprintf("retry later or raise %s; 'agentkit lock status' shows the owner", EnvLockWait))
	case errors.Is(err, lock.ErrCorrupted):
		err = errs.WrapSystem(err, "agent creation lock is corrupted").
			WithHint("inspect it with 'agentkit lock status' and remove it with 'agentkit lock clear'")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = errs.WrapSystem(err, "interrupted while waiting for the lock")
	default:
		err = errs.WrapSystem(err, "acquiring agent creation lock")
	}
	c.Log.Append(oplog.Entry{Operation: OpAcquire, AgentName: name, Status: oplog.StatusFailure, Err: err})
	return nil, err
}

func (c *Creator) release(h *lock.Handle, name string) {
	if err := h.Release(); err != nil {
		c.Logger.Warn().Err(err).Str("lock", h.Path()).Msg("releasing lock")
		c.Log.Append(oplog.Entry{Operation: OpRelease, AgentName: name, Status: oplog.StatusFailure, Err: err})
		return
	}
	c.Log.Append(oplog.Entry{Operation: OpRelease, AgentName: name, Status: oplog.StatusSuccess})
}

func (c *Creator) render(d agent.Descriptor) ([]byte, error) {
	tpl, err := agent.LoadTemplate(c.Settings.TemplatePath)
	if err != nil {
		return nil, err
	}
	return tpl.Render(d)
}

// patchLauncher loads the launcher and applies d in memory.
func (c *Creator) patchLauncher(d agent.Descriptor) (*launcher.Launcher, error) {
	path := c.Settings.LauncherPath
	l, err := launcher.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.System("launcher not found at %s", path)
		}
		return nil, errs.WrapSystem(err, "loading launcher %s", path)
	}
	if err := l.Apply(d.Name, d.Emoji, d.Serena); err != nil {
		return nil, errs.WrapSystem(err, "patching launcher %s", path)
	}
	if err := l.Verify(d.Name, d.Emoji, d.Serena); err != nil {
		return nil, errs.WrapSystem(err, "patched launcher %s failed verification", path)
	}
	return l, nil
}

func (c *Creator) rollback(name, path string, prev []byte, existed bool) {
	var err error
	if existed {
		err = fileutil.WriteAtomic(path, prev, 0o644)
	} else {
		err = os.Remove(path)
	}
	e := oplog.Entry{Operation: OpRollback, AgentName: name, Status: oplog.StatusSuccess, Fields: map[string]string{"path": path}}
	if err != nil {
		c.Logger.Error().Err(err).Str("path", path).Msg("rolling back agent file")
		e.Status = oplog.StatusFailure
		e.Err = err
	}
	c.Log.Append(e)
}

func duplicateError(name, path string) error {
	return errs.User("agent %q already exists at %s", name, path).
		WithHint("use --force to overwrite it")
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
