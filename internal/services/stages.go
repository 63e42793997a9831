// Package services wires configuration, pipeline stages, the dev server and
// the watcher into the build and live entry points.
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/imageopt"
)

// stages are the three pipeline tasks built from one configuration.
type stages struct {
	table  *assets.Table
	html   *build.HTMLTask
	styles *build.StylesTask
	images *build.ImagesTask
}

func newStages(cfg *config.Config, deps build.Deps) (*stages, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("building path table: %w", err)
	}
	chain, err := cfg.Chain()
	if err != nil {
		return nil, fmt.Errorf("building transform chain: %w", err)
	}
	optimizer := imageopt.New(imageopt.Options{JPEGQuality: cfg.Images.JPEGQuality})

	return &stages{
		table:  table,
		html:   build.NewHTMLTask(table.MustGet(assets.HTML), deps),
		styles: build.NewStylesTask(table.MustGet(assets.Styles), chain, deps),
		images: build.NewImagesTask(table.MustGet(assets.Images), optimizer, deps,
			build.WithVerbose(cfg.Images.Verbose)),
	}, nil
}

// steps returns the stages in their fixed order.
func (s *stages) steps(callbacks ...build.StageCallback) []build.Step {
	return []build.Step{
		build.TaskStep(s.html, callbacks...),
		build.TaskStep(s.styles, callbacks...),
		build.TaskStep(s.images, callbacks...),
	}
}

// cleanOutputs removes the destination directories. A destination that
// holds sources, or the working directory itself, is refused.
func cleanOutputs(table *assets.Table) error {
	for _, c := range table.All() {
		dest := filepath.Clean(c.Dest())
		if dest == "." || dest == string(filepath.Separator) {
			return fmt.Errorf("refusing to clean %q", c.Dest())
		}
		for _, src := range table.All() {
			if contains(dest, src.Base()) {
				return fmt.Errorf("refusing to clean %s: it contains %s sources", dest, src.Name())
			}
		}
	}

	for _, c := range table.All() {
		if err := os.RemoveAll(c.Dest()); err != nil {
			return fmt.Errorf("cleaning %s: %w", c.Dest(), err)
		}
	}
	return nil
}

// contains reports whether p is root or below it.
func contains(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
