package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/barysiuk/agentkit/internal/core"
	"github.com/barysiuk/agentkit/internal/core/oplog"
	"github.com/barysiuk/agentkit/internal/logging"
)

// deps holds shared dependencies for CLI commands.
type deps struct {
	settings *core.Settings
	logger   zerolog.Logger
	oplog    *oplog.Log
	creator  *core.Creator
	scanner  *core.Scanner
}

// newDeps resolves settings for the target project and wires the creator.
// Called lazily by commands that need them. An operation log that cannot be
// opened is reported as a warning and replaced by a no-op log.
func newDeps(cmd *cobra.Command) (*deps, error) {
	dir, err := resolveTargetDir(cmd)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelFromEnv(os.Getenv)
	logger := logging.New(cfg)

	settings, err := core.NewConfigManager(dir).Load()
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("project", settings.ProjectDir).
		Str("lock", settings.LockDir).
		Dur("lock_wait", settings.LockWait).
		Msg("settings resolved")

	return &deps{
		settings: settings,
		logger:   logger,
		scanner:  core.NewScanner(settings),
		creator:  core.NewCreator(settings, nil, logger),
	}, nil
}

// openLog attaches the operation log to the creator.
func (d *deps) openLog() {
	l, err := oplog.Open(d.settings.LogsDir)
	if err != nil {
		d.logger.Warn().Err(err).Str("dir", d.settings.LogsDir).Msg("operation log disabled")
		l = oplog.Nop()
	}
	d.oplog = l
	d.creator.Log = l
}

// close releases resources opened by the deps.
func (d *deps) close() {
	if d.oplog == nil {
		return
	}
	if err := d.oplog.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("closing operation log")
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so an
// interrupted run still releases the lock through its deferred cleanup.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
