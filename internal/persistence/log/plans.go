package log

import (
	"io"
	stdlog "log"
	"path/filepath"
	"sync/atomic"

	"voxelmind.ai/internal/ai/telemetry"
)

const PlanPrefix = "plans"

// PlanLogger is a telemetry sink writing every event to
// <dir>/plans/plans-*.jsonl.zst.
type PlanLogger struct {
	w      *JSONLZstdWriter
	logger *stdlog.Logger
	failed atomic.Int64
}

func NewPlanLogger(dir string, logger *stdlog.Logger, opts ...WriterOption) *PlanLogger {
	if logger == nil {
		logger = stdlog.New(io.Discard, "", 0)
	}
	return &PlanLogger{
		w:      NewJSONLZstdWriter(PlanDir(dir), PlanPrefix, opts...),
		logger: logger,
	}
}

func PlanDir(dir string) string { return filepath.Join(dir, PlanPrefix) }

// Emit never blocks the agent loop on a write error; the error is logged and
// counted.
func (l *PlanLogger) Emit(e telemetry.Event) {
	if err := l.w.Write(e); err != nil {
		if l.failed.Add(1) == 1 {
			l.logger.Printf("plan log write: %v", err)
		}
	}
}

func (l *PlanLogger) Failed() int64  { return l.failed.Load() }
func (l *PlanLogger) Written() int64 { return l.w.Lines() }
func (l *PlanLogger) Close() error   { return l.w.Close() }

// Filter selects events when reading plan logs. Zero fields match anything.
type Filter struct {
	Agent uint64
	Root  string
	Kinds []telemetry.Kind
}

func (f Filter) Match(e telemetry.Event) bool {
	if f.Agent != 0 && uint64(e.Agent) != f.Agent {
		return false
	}
	if f.Root != "" && e.Root != f.Root {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// ReadPlans replays every plan log under dir, oldest first, passing matching
// events to fn.
func ReadPlans(dir string, f Filter, fn func(telemetry.Event) error) error {
	files, err := Files(PlanDir(dir), PlanPrefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		err := ReadFile(path, func(e telemetry.Event) error {
			if !f.Match(e) {
				return nil
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
