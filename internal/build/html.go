package build

import (
	"context"
	"os"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// HTMLTask copies HTML sources to the output directory byte for byte.
type HTMLTask struct {
	category assets.Category
	deps     Deps
}

// NewHTMLTask creates the copy stage for category.
func NewHTMLTask(category assets.Category, deps Deps) *HTMLTask {
	return &HTMLTask{category: category, deps: deps.withDefaults(category.Name())}
}

// Name implements Task.
func (t *HTMLTask) Name() string { return t.category.Name() }

// Run copies every matching file and then asks browsers for a full reload.
func (t *HTMLTask) Run(ctx context.Context) StageResult {
	start := time.Now()
	op := logging.StartOperation(t.deps.Logger, t.Name())
	var c counters

	files, err := t.category.Files()
	if err != nil {
		t.deps.Reporter.Report(ctx, errors.IO(t.Name(), t.category.Base(), err))
		return c.result(t.Name(), 0, start)
	}

	forEachFile(ctx, files, t.deps.Concurrency, t.deps.Reporter, &c, t.copy(&c))

	result := c.result(t.Name(), len(files), start)
	if result.Written > 0 {
		t.deps.Notifier.Reload()
	}
	op.End(ctx, "matched", result.Matched, "written", result.Written, "failed", result.Failed)
	return result
}

func (t *HTMLTask) copy(c *counters) func(ctx context.Context, path string) error {
	return func(ctx context.Context, path string) error {
		dest, err := t.category.DestPath(path)
		if err != nil {
			return errors.IO(t.Name(), path, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.IO(t.Name(), path, err)
		}
		if err := writeFile(dest, data); err != nil {
			return errors.IO(t.Name(), path, err)
		}

		c.wrote()
		t.deps.Logger.Debug(ctx, "Copied file", "src", path, "dest", dest)
		return nil
	}
}
