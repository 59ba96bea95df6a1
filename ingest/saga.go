package ingest

import (
	"context"

	"go.uber.org/zap"
)

// compensation undoes one completed write
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga records compensations as writes succeed and unwinds them most recent first.
// Undo failures are logged and never replace the failure that triggered the unwind.
type saga struct {
	log   *zap.SugaredLogger
	steps []compensation
}

func newSaga(log *zap.SugaredLogger) *saga {
	return &saga{log: log}
}

func (s *saga) record(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

// compensate runs every recorded undo in reverse order and clears the list.
// Undos ignore cancellation of ctx, which is often the failure being unwound.
// It returns the number of undos that failed.
func (s *saga) compensate(ctx context.Context) int {
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			failed++
			s.log.Warnw("Compensation failed",
				"compensation", step.name,
				"error", err)
			continue
		}
		s.log.Debugw("Compensated", "compensation", step.name)
	}
	s.steps = nil
	return failed
}

func (s *saga) len() int {
	return len(s.steps)
}
