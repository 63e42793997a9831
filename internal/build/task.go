// Package build implements the three pipeline stages (copy HTML, transform
// styles, process images) and the pipeline descriptor that sequences them.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Notifier is told about written output so connected browsers can refresh.
type Notifier interface {
	// Reload asks for a full page reload.
	Reload()
	// Inject asks clients to swap in the file at path without reloading.
	Inject(path string)
}

// NopNotifier ignores every notification. It is used by one-shot builds.
type NopNotifier struct{}

func (NopNotifier) Reload()       {}
func (NopNotifier) Inject(string) {}

// Task is one pipeline stage bound to one asset category.
type Task interface {
	Name() string
	Run(ctx context.Context) StageResult
}

// StageResult summarizes one run of a stage.
type StageResult struct {
	Stage    string
	Matched  int
	Written  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Deps are the collaborators every stage receives.
type Deps struct {
	Reporter    errors.Reporter
	Logger      logging.Logger
	Notifier    Notifier
	Concurrency int
}

func (d Deps) withDefaults(stage string) Deps {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	d.Logger = d.Logger.WithComponent(stage)
	if d.Reporter == nil {
		d.Reporter = errors.NewConsoleReporter(d.Logger, io.Discard)
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Concurrency <= 0 {
		d.Concurrency = runtime.GOMAXPROCS(0)
	}
	return d
}

// counters is the mutable side of a StageResult while files are in flight.
type counters struct {
	written int64
	skipped int64
	failed  int64
}

func (c *counters) wrote() { atomic.AddInt64(&c.written, 1) }

func (c *counters) skip() { atomic.AddInt64(&c.skipped, 1) }

func (c *counters) result(stage string, matched int, start time.Time) StageResult {
	return StageResult{
		Stage:    stage,
		Matched:  matched,
		Written:  int(atomic.LoadInt64(&c.written)),
		Skipped:  int(atomic.LoadInt64(&c.skipped)),
		Failed:   int(atomic.LoadInt64(&c.failed)),
		Duration: time.Since(start),
	}
}

// forEachFile runs fn for every file with at most limit in flight and returns
// once all of them finished. A failing file is reported and counted; it never
// stops the others.
func forEachFile(ctx context.Context, files []string, limit int, reporter errors.Reporter, c *counters, fn func(ctx context.Context, path string) error) {
	var g errgroup.Group
	g.SetLimit(limit)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := fn(ctx, file); err != nil {
				atomic.AddInt64(&c.failed, 1)
				reporter.Report(ctx, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// writeFile writes data to dest, creating parent directories. The content is
// written to a temporary sibling first so readers never see a partial file.
func writeFile(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", dest, err)
	}
	return nil
}
