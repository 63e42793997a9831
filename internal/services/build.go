package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// BuildService runs the one-shot build.
type BuildService struct {
	config   *config.Config
	logger   logging.Logger
	reporter errors.Reporter
}

// NewBuildService creates a build service. A nil reporter logs failures and
// rings the terminal bell.
func NewBuildService(cfg *config.Config, logger logging.Logger, reporter errors.Reporter) *BuildService {
	if logger == nil {
		logger = logging.Nop()
	}
	if reporter == nil {
		reporter = errors.NewConsoleReporter(logger, nil)
	}
	return &BuildService{config: cfg, logger: logger, reporter: reporter}
}

// BuildOptions contains options for the build process
type BuildOptions struct {
	// Clean removes the output directories first.
	Clean bool
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Duration time.Duration
	Stages   []build.StageResult
	Written  int
	Failed   int
	Success  bool
}

// Build runs html, styles and images strictly in sequence. File failures
// are reported and counted in the result; only setup problems are returned
// as errors.
func (s *BuildService) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	st, err := newStages(s.config, s.deps(build.NopNotifier{}))
	if err != nil {
		return nil, err
	}

	if opts.Clean {
		if err := cleanOutputs(st.table); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "Cleaned output directories", "dirs", s.config.OutputDirs())
	}

	var mutex sync.Mutex
	record := func(r build.StageResult) {
		mutex.Lock()
		defer mutex.Unlock()
		result.Stages = append(result.Stages, r)
		result.Written += r.Written
		result.Failed += r.Failed
	}

	pipeline := build.Series("build", st.steps(record)...)
	s.logger.Debug(ctx, "Running pipeline", "steps", pipeline.Describe())
	if err := pipeline.Run(ctx); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	result.Duration = time.Since(start)
	result.Success = result.Failed == 0
	s.logger.Info(ctx, "Build finished",
		"written", result.Written,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, nil
}

func (s *BuildService) deps(notifier build.Notifier) build.Deps {
	return build.Deps{
		Reporter:    s.reporter,
		Logger:      s.logger,
		Notifier:    notifier,
		Concurrency: s.config.Concurrency,
	}
}
