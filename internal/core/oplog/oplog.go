// Package oplog appends one JSON record per significant step of an agent
// creation to an append-only log file.
package oplog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// FileName is the log file name inside the logs directory.
const FileName = "agent-creation.log"

// Status values written to the status field.
const (
	StatusStarted   = "started"
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusContended = "lock_contended"
	StatusRecovered = "lock_recovered"
)

// Entry is one log record. The level is derived: error when Err is set,
// warn for lock contention and recovery, info otherwise.
type Entry struct {
	Operation string
	AgentName string
	Status    string
	Duration  time.Duration
	Err       error
	Fields    map[string]string
}

// Log writes entries as JSON lines. Each entry is encoded into a single
// buffer and handed to the file in one write on an O_APPEND descriptor, so
// concurrent appenders never interleave partial lines.
type Log struct {
	logger zerolog.Logger
	closer io.Closer
	runID  string
	now    func() time.Time
}

// Open opens (creating if needed) <dir>/agent-creation.log for appending.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening operation log: %w", err)
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// New returns a Log writing to w.
func New(w io.Writer) *Log {
	return &Log{
		logger: zerolog.New(zerolog.SyncWriter(w)),
		runID:  ulid.Make().String(),
		now:    time.Now,
	}
}

// Nop returns a Log that discards everything.
func Nop() *Log {
	return &Log{logger: zerolog.Nop(), now: time.Now}
}

// SetClock overrides the timestamp source.
func (l *Log) SetClock(now func() time.Time) {
	l.now = now
}

// RunID identifies the invocation; it is attached to every record.
func (l *Log) RunID() string {
	return l.runID
}

// Append writes e as one line.
func (l *Log) Append(e Entry) {
	level := zerolog.InfoLevel
	switch {
	case e.Err != nil:
		level = zerolog.ErrorLevel
	case e.Status == StatusContended || e.Status == StatusRecovered:
		level = zerolog.WarnLevel
	}

	ev := l.logger.WithLevel(level).
		Str("timestamp", l.now().UTC().Format(time.RFC3339)).
		Str("operation", e.Operation).
		Str("agent_name", e.AgentName).
		Str("status", e.Status).
		Str("run_id", l.runID).
		Int("pid", os.Getpid())
	if e.Duration > 0 {
		ev = ev.Int64("duration_ms", e.Duration.Milliseconds())
	}
	if e.Err != nil {
		ev = ev.Str("error", e.Err.Error())
	}
	for k, v := range e.Fields {
		ev = ev.Str(k, v)
	}
	ev.Send()
}

// Close closes the underlying file, if any.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
