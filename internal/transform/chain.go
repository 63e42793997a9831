// Package transform implements the ordered CSS transform chain: pure
// source-to-source steps applied one after another to each stylesheet.
package transform

import (
	"fmt"
	"strings"
)

// Step names understood by ChainFromNames.
const (
	StepPrefix = "prefix"
	StepMinify = "minify"
)

// Step is one source-to-source transformation.
type Step interface {
	Name() string
	Transform(src []byte) ([]byte, error)
}

// StepError identifies the step that rejected its input.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Chain applies its steps in order, each consuming the previous output.
type Chain struct {
	steps []Step
}

// NewChain creates a chain running steps in the given order.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// DefaultChain returns prefix followed by minify.
func DefaultChain() *Chain {
	return NewChain(NewPrefixer(), NewMinifier())
}

// ChainFromNames builds a chain from step names. Prefixing inserts
// declarations the minifier must see, so "prefix" may not follow "minify".
func ChainFromNames(names []string) (*Chain, error) {
	steps := make([]Step, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if seen[name] {
			return nil, fmt.Errorf("step %q listed twice", name)
		}
		seen[name] = true

		switch name {
		case StepPrefix:
			if seen[StepMinify] {
				return nil, fmt.Errorf("step %q must run before %q", StepPrefix, StepMinify)
			}
			steps = append(steps, NewPrefixer())
		case StepMinify:
			steps = append(steps, NewMinifier())
		default:
			return nil, fmt.Errorf("unknown step %q", raw)
		}
	}
	return NewChain(steps...), nil
}

// Apply runs every step over src.
func (c *Chain) Apply(src []byte) ([]byte, error) {
	out := src
	for _, step := range c.steps {
		next, err := step.Transform(out)
		if err != nil {
			return nil, &StepError{Step: step.Name(), Err: err}
		}
		out = next
	}
	return out, nil
}

// Names returns the step names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name()
	}
	return names
}

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.steps) }
