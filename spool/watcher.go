package spool

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher drains the spool whenever documents arrive in it
type Watcher struct {
	proc *Processor

	mu       sync.Mutex
	debounce time.Duration

	// passes is signalled after every drain, for callers waiting on progress
	passes chan Summary
}

// NewWatcher creates a watcher around proc. A non-positive debounce uses 500ms.
func NewWatcher(proc *Processor, debounce time.Duration) *Watcher {
	w := &Watcher{proc: proc, passes: make(chan Summary, 1)}
	w.SetDebounce(debounce)
	return w
}

// SetDebounce changes the quiet period that must follow the last event before a drain
func (w *Watcher) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = defaultDebounce
	}
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

func (w *Watcher) currentDebounce() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.debounce
}

// Passes delivers the summary of the latest drain; older unread summaries are dropped
func (w *Watcher) Passes() <-chan Summary {
	return w.passes
}

// Run drains the spool once, then again after each burst of new documents.
// It returns nil when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer fw.Close()

	dir := w.proc.Dir()
	if err := fw.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch spool directory %s", dir)
	}
	logger.SpoolInfow(w.proc.log, "Watching spool", logger.FieldPath, dir)

	if err := w.drain(ctx); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isDocument(filepath.Base(event.Name)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.currentDebounce())
			fire = timer.C

		case <-fire:
			timer, fire = nil, nil
			if err := w.drain(ctx); err != nil {
				return err
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.proc.log.Warnw("Spool watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) drain(ctx context.Context) error {
	summary, err := w.proc.RunOnce(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}

	select {
	case <-w.passes:
	default:
	}
	w.passes <- summary
	return nil
}
