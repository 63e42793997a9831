package build

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Step is a node of a pipeline descriptor.
type Step interface {
	Name() string
	Run(ctx context.Context) error
	// Describe renders the step and its children, e.g.
	// "series(html, styles, parallel(server, watch))".
	Describe() string
}

// StageCallback is called after a task step completes.
type StageCallback func(result StageResult)

type taskStep struct {
	task      Task
	callbacks []StageCallback
}

// TaskStep wraps a stage. Per-file failures are reported by the task itself,
// so a task step never returns an error.
func TaskStep(task Task, callbacks ...StageCallback) Step {
	return &taskStep{task: task, callbacks: callbacks}
}

func (s *taskStep) Name() string     { return s.task.Name() }
func (s *taskStep) Describe() string { return s.task.Name() }

func (s *taskStep) Run(ctx context.Context) error {
	result := s.task.Run(ctx)
	for _, cb := range s.callbacks {
		cb(result)
	}
	return nil
}

type funcStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Func wraps a long-lived or setup step such as the dev server.
func Func(name string, fn func(ctx context.Context) error) Step {
	return &funcStep{name: name, fn: fn}
}

func (s *funcStep) Name() string     { return s.name }
func (s *funcStep) Describe() string { return s.name }

func (s *funcStep) Run(ctx context.Context) error {
	if err := s.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

type seriesStep struct {
	name  string
	steps []Step
}

// Series runs steps one after another. Each step returns only after its
// writes are complete, so later steps observe earlier output. The first
// error stops the series.
func Series(name string, steps ...Step) Step {
	return &seriesStep{name: name, steps: steps}
}

func (s *seriesStep) Name() string { return s.name }

func (s *seriesStep) Describe() string {
	return "series(" + describeAll(s.steps) + ")"
}

func (s *seriesStep) Run(ctx context.Context) error {
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

type parallelStep struct {
	name  string
	steps []Step
}

// Parallel runs steps concurrently and waits for all of them. The first
// error cancels the context handed to the others.
func Parallel(name string, steps ...Step) Step {
	return &parallelStep{name: name, steps: steps}
}

func (s *parallelStep) Name() string { return s.name }

func (s *parallelStep) Describe() string {
	return "parallel(" + describeAll(s.steps) + ")"
}

func (s *parallelStep) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, step := range s.steps {
		step := step
		g.Go(func() error {
			return step.Run(ctx)
		})
	}
	return g.Wait()
}

func describeAll(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.Describe()
	}
	return strings.Join(parts, ", ")
}
