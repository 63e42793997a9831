package build

import (
	"context"
	"os"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/transform"
)

// StylesTask runs every stylesheet through the transform chain.
type StylesTask struct {
	category assets.Category
	chain    *transform.Chain
	deps     Deps
}

// NewStylesTask creates the styles stage. A nil chain means the default
// prefix then minify chain.
func NewStylesTask(category assets.Category, chain *transform.Chain, deps Deps) *StylesTask {
	if chain == nil {
		chain = transform.DefaultChain()
	}
	return &StylesTask{category: category, chain: chain, deps: deps.withDefaults(category.Name())}
}

// Name implements Task.
func (t *StylesTask) Name() string { return t.category.Name() }

// Run transforms every matching stylesheet. Each written file is streamed
// to browsers without a full reload.
func (t *StylesTask) Run(ctx context.Context) StageResult {
	start := time.Now()
	op := logging.StartOperation(t.deps.Logger, t.Name())
	var c counters

	files, err := t.category.Files()
	if err != nil {
		t.deps.Reporter.Report(ctx, errors.IO(t.Name(), t.category.Base(), err))
		return c.result(t.Name(), 0, start)
	}

	forEachFile(ctx, files, t.deps.Concurrency, t.deps.Reporter, &c, func(ctx context.Context, path string) error {
		dest, err := t.process(path)
		if err != nil {
			return err
		}
		c.wrote()
		t.deps.Notifier.Inject(dest)
		t.deps.Logger.Debug(ctx, "Transformed stylesheet", "src", path, "dest", dest)
		return nil
	})

	result := c.result(t.Name(), len(files), start)
	op.End(ctx, "matched", result.Matched, "written", result.Written, "failed", result.Failed)
	return result
}

func (t *StylesTask) process(path string) (string, error) {
	dest, err := t.category.DestPath(path)
	if err != nil {
		return "", errors.IO(t.Name(), path, err)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return "", errors.IO(t.Name(), path, err)
	}

	out, err := t.chain.Apply(src)
	if err != nil {
		return "", errors.Transform(t.Name(), path, err)
	}

	if err := writeFile(dest, out); err != nil {
		return "", errors.IO(t.Name(), path, err)
	}
	return dest, nil
}
