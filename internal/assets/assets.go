// Package assets holds the path table: the fixed mapping from an asset
// category to the glob that selects its sources and the directory that
// receives its output.
package assets

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Category names used throughout the pipeline.
const (
	HTML   = "html"
	Styles = "styles"
	Images = "images"
)

// Category is one row of the path table. It is immutable once built.
type Category struct {
	name     string
	source   string
	dest     string
	base     string
	matchers []glob.Glob
}

// NewCategory compiles source into a matcher. The glob uses forward slashes
// and supports *, **, ? and {a,b} alternation.
func NewCategory(name, source, dest string) (Category, error) {
	if name == "" {
		return Category{}, fmt.Errorf("category name is empty")
	}
	if source == "" {
		return Category{}, fmt.Errorf("category %s: source glob is empty", name)
	}
	if dest == "" {
		return Category{}, fmt.Errorf("category %s: destination is empty", name)
	}

	pattern := normalize(source)
	variants := []string{pattern}
	// "a/**/b" also matches "a/b".
	if strings.Contains(pattern, "/**/") {
		variants = append(variants, strings.ReplaceAll(pattern, "/**/", "/"))
	}

	matchers := make([]glob.Glob, 0, len(variants))
	for _, v := range variants {
		m, err := glob.Compile(v, '/')
		if err != nil {
			return Category{}, fmt.Errorf("category %s: compiling glob %q: %w", name, source, err)
		}
		matchers = append(matchers, m)
	}

	return Category{
		name:     name,
		source:   pattern,
		dest:     filepath.Clean(dest),
		base:     staticBase(pattern),
		matchers: matchers,
	}, nil
}

// Name returns the category name.
func (c Category) Name() string { return c.name }

// Source returns the normalized source glob.
func (c Category) Source() string { return c.source }

// Dest returns the destination directory.
func (c Category) Dest() string { return c.dest }

// Base returns the directory prefix of the glob that contains no wildcard.
func (c Category) Base() string { return filepath.FromSlash(c.base) }

// Recursive reports whether the glob can match files below the immediate
// children of its base directory.
func (c Category) Recursive() bool {
	return path.Dir(c.source) != c.base
}

// Match reports whether p is selected by the category glob.
func (c Category) Match(p string) bool {
	p = normalize(filepath.Clean(p))
	for _, m := range c.matchers {
		if m.Match(p) {
			return true
		}
	}
	return false
}

// Files walks the base directory and returns the matching regular files in
// lexical order. A missing base directory yields no files.
func (c Category) Files() ([]string, error) {
	root := c.Base()
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && !c.Recursive() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && c.Match(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// Rel returns p relative to the category base.
func (c Category) Rel(p string) (string, error) {
	return filepath.Rel(c.Base(), filepath.Clean(p))
}

// DestPath returns the output path of p keeping its position below the base.
func (c Category) DestPath(p string) (string, error) {
	rel, err := c.Rel(p)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", p, c.Base())
	}
	return filepath.Join(c.dest, rel), nil
}

// FlatDestPath returns the output path of p with all directories dropped.
func (c Category) FlatDestPath(p string) string {
	return filepath.Join(c.dest, Flatten(p))
}

// Flatten strips every directory component from p. Flatten is idempotent.
func Flatten(p string) string {
	return filepath.Base(filepath.FromSlash(p))
}

func normalize(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return "."
	}
	return p
}

// staticBase returns the leading directories of pattern that contain no
// glob metacharacters.
func staticBase(pattern string) string {
	segments := strings.Split(pattern, "/")
	var static []string
	for _, seg := range segments[:len(segments)-1] {
		if strings.ContainsAny(seg, "*?[{") {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return "."
	}
	if static[0] == "" {
		return "/" + path.Join(static[1:]...)
	}
	return path.Join(static...)
}

// Table is the ordered set of categories.
type Table struct {
	categories []Category
	byName     map[string]int
}

// NewTable builds a table. Category names must be unique.
func NewTable(categories ...Category) (*Table, error) {
	t := &Table{byName: make(map[string]int, len(categories))}
	for _, c := range categories {
		if _, dup := t.byName[c.name]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.name)
		}
		t.byName[c.name] = len(t.categories)
		t.categories = append(t.categories, c)
	}
	return t, nil
}

// Get returns the category called name.
func (t *Table) Get(name string) (Category, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Category{}, false
	}
	return t.categories[i], true
}

// MustGet is Get for names known to be present.
func (t *Table) MustGet(name string) Category {
	c, ok := t.Get(name)
	if !ok {
		panic("assets: unknown category " + name)
	}
	return c
}

// All returns the categories in declaration order.
func (t *Table) All() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Classify returns the first category whose glob matches p.
func (t *Table) Classify(p string) (Category, bool) {
	for _, c := range t.categories {
		if c.Match(p) {
			return c, true
		}
	}
	return Category{}, false
}

// DefaultTable returns the standard src/ -> dist/ layout.
func DefaultTable() *Table {
	html, _ := NewCategory(HTML, "src/*.html", "dist")
	styles, _ := NewCategory(Styles, "src/css/*.css", "dist/css")
	images, _ := NewCategory(Images, "src/img/**/*.{png,jpg,gif,svg}", "dist/img")
	t, _ := NewTable(html, styles, images)
	return t
}
