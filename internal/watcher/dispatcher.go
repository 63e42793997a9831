package watcher

import (
	"context"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// StageWatch is the stage name attached to watcher failures.
const StageWatch = "watch"

// DeletionHandler is implemented by tasks that clean up after a source file
// is removed instead of re-running.
type DeletionHandler interface {
	HandleDeleted(ctx context.Context, path string) error
}

// Dispatcher is the single consumer of watch events. It maps each event to
// the task registered for its category.
type Dispatcher struct {
	tasks    map[string]build.Task
	reporter errors.Reporter
	logger   logging.Logger
	onResult build.StageCallback
}

// NewDispatcher creates a dispatcher with no tasks registered.
func NewDispatcher(reporter errors.Reporter, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent(StageWatch)
	if reporter == nil {
		reporter = errors.NewConsoleReporter(logger, nil)
	}
	return &Dispatcher{
		tasks:    make(map[string]build.Task),
		reporter: reporter,
		logger:   logger,
	}
}

// Register routes events of category to task.
func (d *Dispatcher) Register(category string, task build.Task) {
	d.tasks[category] = task
}

// OnResult sets a callback invoked after every task re-run.
func (d *Dispatcher) OnResult(cb build.StageCallback) {
	d.onResult = cb
}

// Dispatch handles one event. A deleted file, or a renamed one whose old
// path no longer exists, is cleaned up when the category's task is a
// DeletionHandler; anything else re-runs the category's task.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	task, ok := d.tasks[event.Category]
	if !ok {
		d.logger.Debug(ctx, "No task for event", "category", event.Category, "path", event.Path)
		return
	}

	// The file may have been moved away during the debounce window.
	kind := resolveKind(event.Kind, event.Path)
	d.logger.Info(ctx, "File changed", "category", event.Category, "kind", kind.String(), "path", event.Path)

	if kind == EventTypeDeleted {
		if h, ok := task.(DeletionHandler); ok {
			// HandleDeleted reports its own failures.
			_ = h.HandleDeleted(ctx, event.Path)
			return
		}
	}

	result := task.Run(ctx)
	if d.onResult != nil {
		d.onResult(result)
	}
}

// Run consumes events and errors until ctx is done or events is closed.
// Watcher errors are reported and never stop the loop.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, event)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.reporter.Report(ctx, errors.New(errors.ErrorTypeWatch, StageWatch, "", err))
		}
	}
}

// Watch starts fw and dispatches its events until ctx is done.
func (d *Dispatcher) Watch(ctx context.Context, fw *FileWatcher) error {
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	d.logger.Info(ctx, "Watching for changes", "paths", fw.WatchedPaths())
	return d.Run(ctx, fw.Events(), fw.Errors())
}
