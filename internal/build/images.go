package build

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/imageopt"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// ImagesTask optimizes images into a flat output directory, skipping
// sources whose content has not changed since they were last optimized.
type ImagesTask struct {
	category  assets.Category
	optimizer imageopt.Optimizer
	cache     *ImageCache
	verbose   bool
	deps      Deps

	optimized int64
}

// ImagesOption configures an ImagesTask.
type ImagesOption func(*ImagesTask)

// WithVerbose logs one line per optimized image with the bytes saved.
func WithVerbose(verbose bool) ImagesOption {
	return func(t *ImagesTask) { t.verbose = verbose }
}

// WithCache shares an existing cache with the task.
func WithCache(cache *ImageCache) ImagesOption {
	return func(t *ImagesTask) { t.cache = cache }
}

// NewImagesTask creates the images stage.
func NewImagesTask(category assets.Category, optimizer imageopt.Optimizer, deps Deps, opts ...ImagesOption) *ImagesTask {
	if optimizer == nil {
		optimizer = imageopt.New(imageopt.DefaultOptions())
	}
	t := &ImagesTask{
		category:  category,
		optimizer: optimizer,
		deps:      deps.withDefaults(category.Name()),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cache == nil {
		t.cache = NewImageCache()
	}
	return t
}

// Name implements Task.
func (t *ImagesTask) Name() string { return t.category.Name() }

// Cache returns the cache consulted before optimizing.
func (t *ImagesTask) Cache() *ImageCache { return t.cache }

// Optimized returns how many times the optimizer has been invoked.
func (t *ImagesTask) Optimized() int64 { return atomic.LoadInt64(&t.optimized) }

// Run processes every matching image.
func (t *ImagesTask) Run(ctx context.Context) StageResult {
	start := time.Now()
	op := logging.StartOperation(t.deps.Logger, t.Name())
	var c counters

	files, err := t.category.Files()
	if err != nil {
		t.deps.Reporter.Report(ctx, errors.IO(t.Name(), t.category.Base(), err))
		return c.result(t.Name(), 0, start)
	}

	forEachFile(ctx, files, t.deps.Concurrency, t.deps.Reporter, &c, func(ctx context.Context, path string) error {
		return t.process(ctx, path, &c)
	})

	result := c.result(t.Name(), len(files), start)
	if result.Written > 0 {
		t.deps.Notifier.Reload()
	}
	op.End(ctx, "matched", result.Matched, "written", result.Written,
		"cached", result.Skipped, "failed", result.Failed)
	return result
}

func (t *ImagesTask) process(ctx context.Context, path string, c *counters) error {
	dest := t.category.FlatDestPath(path)

	src, err := os.ReadFile(path)
	if err != nil {
		return errors.IO(t.Name(), path, err)
	}
	hash := ContentHash(src)

	if t.cache.Unchanged(path, hash) {
		c.skip()
		if _, err := os.Stat(dest); err == nil {
			return nil
		}
		// The output went missing; restore it without optimizing.
		if err := writeFile(dest, src); err != nil {
			return errors.IO(t.Name(), path, err)
		}
		c.wrote()
		return nil
	}

	atomic.AddInt64(&t.optimized, 1)
	out, err := t.optimizer.Optimize(path, src)
	if err != nil {
		return errors.Transform(t.Name(), path, err)
	}

	if err := writeFile(dest, out); err != nil {
		return errors.IO(t.Name(), path, err)
	}
	t.cache.Record(path, hash)
	c.wrote()

	if t.verbose {
		t.deps.Logger.Info(ctx, "Optimized image",
			"src", path,
			"dest", dest,
			"saved", formatSaved(len(src), len(out)),
		)
	}
	return nil
}

// HandleDeleted removes the output of a deleted source and evicts its cache
// entry.
func (t *ImagesTask) HandleDeleted(ctx context.Context, path string) error {
	dest := t.category.FlatDestPath(path)

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		err = errors.IO(t.Name(), path, fmt.Errorf("removing %s: %w", dest, err))
		t.deps.Reporter.Report(ctx, err)
		return err
	}
	evicted := t.cache.Evict(path)

	t.deps.Logger.Info(ctx, "Removed deleted image", "src", path, "dest", dest, "evicted", evicted)
	t.deps.Notifier.Reload()
	return nil
}

func formatSaved(before, after int) string {
	saved := before - after
	if before == 0 {
		return "0 B"
	}
	return fmt.Sprintf("%d B (%.1f%%)", saved, float64(saved)*100/float64(before))
}
