package build

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// project lays out a src/ tree under a temp dir and returns its path table.
type project struct {
	root  string
	table *assets.Table
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dist := filepath.Join(root, "dist")

	html, err := assets.NewCategory(assets.HTML, filepath.Join(src, "*.html"), dist)
	require.NoError(t, err)
	styles, err := assets.NewCategory(assets.Styles, filepath.Join(src, "css", "*.css"), filepath.Join(dist, "css"))
	require.NoError(t, err)
	images, err := assets.NewCategory(assets.Images, filepath.Join(src, "img", "**", "*.{png,jpg,gif,svg}"), filepath.Join(dist, "img"))
	require.NoError(t, err)
	table, err := assets.NewTable(html, styles, images)
	require.NoError(t, err)

	return &project{root: root, table: table}
}

func (p *project) path(parts ...string) string {
	return filepath.Join(append([]string{p.root}, parts...)...)
}

func (p *project) write(t *testing.T, content []byte, parts ...string) string {
	t.Helper()
	path := p.path(parts...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

type recordingNotifier struct {
	mu       sync.Mutex
	reloads  int
	injected []string
}

func (n *recordingNotifier) Reload() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads++
}

func (n *recordingNotifier) Inject(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.injected = append(n.injected, path)
}

type countingOptimizer struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *countingOptimizer) Optimize(name string, src []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[filepath.Base(name)]++
	if strings.HasPrefix(filepath.Base(name), "bad") {
		return nil, stderrors.New("unsupported image format")
	}
	return append([]byte("opt:"), src...), nil
}

func (o *countingOptimizer) count(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[name]
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestHTMLTaskCopiesByteForByte(t *testing.T) {
	p := newProject(t)
	content := []byte("<!doctype html>\r\n<title>a</title>\n\x00trailing")
	p.write(t, content, "src", "a.html")
	p.write(t, []byte("<p>b</p>"), "src", "b.html")
	p.write(t, []byte("ignored"), "src", "notes.md")

	notifier := &recordingNotifier{}
	collector := errors.NewCollector(nil)
	task := NewHTMLTask(p.table.MustGet(assets.HTML), Deps{Reporter: collector, Notifier: notifier})

	result := task.Run(context.Background())

	assert.Equal(t, assets.HTML, result.Stage)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Written)
	assert.Zero(t, collector.Count())

	got, err := os.ReadFile(p.path("dist", "a.html"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.NoFileExists(t, p.path("dist", "notes.md"))
	assert.Equal(t, 1, notifier.reloads)
}

func TestHTMLTaskNoSources(t *testing.T) {
	p := newProject(t)
	notifier := &recordingNotifier{}
	task := NewHTMLTask(p.table.MustGet(assets.HTML), Deps{Notifier: notifier})

	result := task.Run(context.Background())
	assert.Zero(t, result.Matched)
	assert.Zero(t, notifier.reloads)
}

func TestStylesTaskAppliesChain(t *testing.T) {
	p := newProject(t)
	input := []byte(".box {\n  user-select: none;\n  color: #ff0000;\n}\n")
	p.write(t, input, "src", "css", "b.css")

	notifier := &recordingNotifier{}
	task := NewStylesTask(p.table.MustGet(assets.Styles), nil, Deps{Notifier: notifier})
	result := task.Run(context.Background())
	assert.Equal(t, 1, result.Written)

	prefixed, err := transform.NewPrefixer().Transform(input)
	require.NoError(t, err)
	expected, err := transform.NewMinifier().Transform(prefixed)
	require.NoError(t, err)

	got, err := os.ReadFile(p.path("dist", "css", "b.css"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(got))
	assert.Contains(t, string(got), "-webkit-user-select:none")

	assert.Equal(t, []string{p.path("dist", "css", "b.css")}, notifier.injected)
	assert.Zero(t, notifier.reloads)
}

func TestStylesTaskFailureIsolated(t *testing.T) {
	p := newProject(t)
	p.write(t, []byte("a{color:red}"), "src", "css", "good.css")
	p.write(t, []byte("bad"), "src", "css", "bad.css")

	failing := transform.NewChain(rejectStep{})
	collector := errors.NewCollector(nil)
	task := NewStylesTask(p.table.MustGet(assets.Styles), failing, Deps{Reporter: collector})

	result := task.Run(context.Background())
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, result.Failed)

	assert.FileExists(t, p.path("dist", "css", "good.css"))
	assert.NoFileExists(t, p.path("dist", "css", "bad.css"))

	reports := collector.ByStage(assets.Styles)
	require.Len(t, reports, 1)
	assert.Equal(t, p.path("src", "css", "bad.css"), reports[0].Path)
	assert.True(t, errors.IsType(reports[0].Err, errors.ErrorTypeTransform))
}

type rejectStep struct{}

func (rejectStep) Name() string { return "reject" }

func (rejectStep) Transform(src []byte) ([]byte, error) {
	if string(src) == "bad" {
		return nil, stderrors.New("malformed css")
	}
	return src, nil
}

func TestImagesTaskFlattensAndCaches(t *testing.T) {
	p := newProject(t)
	src := p.write(t, pngBytes(t), "src", "img", "sub", "c.png")
	p.write(t, pngBytes(t), "src", "img", "d.png")

	optimizer := &countingOptimizer{}
	task := NewImagesTask(p.table.MustGet(assets.Images), optimizer, Deps{})

	result := task.Run(context.Background())
	assert.Equal(t, 2, result.Written)
	assert.FileExists(t, p.path("dist", "img", "c.png"))
	assert.FileExists(t, p.path("dist", "img", "d.png"))
	assert.NoDirExists(t, p.path("dist", "img", "sub"))
	assert.Equal(t, 1, optimizer.count("c.png"))
	assert.Equal(t, 2, task.Cache().Len())

	// Unchanged sources are not optimized again.
	result = task.Run(context.Background())
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Written)
	assert.Equal(t, 1, optimizer.count("c.png"))
	assert.Equal(t, int64(2), task.Optimized())

	got, err := os.ReadFile(p.path("dist", "img", "c.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(got, []byte("opt:")))

	// Changed content is optimized again.
	require.NoError(t, os.WriteFile(src, append(pngBytes(t), 0), 0644))
	task.Run(context.Background())
	assert.Equal(t, 2, optimizer.count("c.png"))
}

func TestImagesTaskRestoresMissingOutputWithoutOptimizing(t *testing.T) {
	p := newProject(t)
	content := pngBytes(t)
	p.write(t, content, "src", "img", "c.png")

	optimizer := &countingOptimizer{}
	task := NewImagesTask(p.table.MustGet(assets.Images), optimizer, Deps{})
	task.Run(context.Background())

	require.NoError(t, os.Remove(p.path("dist", "img", "c.png")))
	result := task.Run(context.Background())

	assert.Equal(t, 1, optimizer.count("c.png"))
	assert.Equal(t, 1, result.Written)
	got, err := os.ReadFile(p.path("dist", "img", "c.png"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestImagesTaskHandleDeleted(t *testing.T) {
	p := newProject(t)
	src := p.write(t, pngBytes(t), "src", "img", "sub", "c.png")

	notifier := &recordingNotifier{}
	task := NewImagesTask(p.table.MustGet(assets.Images), &countingOptimizer{}, Deps{Notifier: notifier})
	task.Run(context.Background())
	_, cached := task.Cache().Get(src)
	require.True(t, cached)

	require.NoError(t, os.Remove(src))
	require.NoError(t, task.HandleDeleted(context.Background(), src))

	assert.NoFileExists(t, p.path("dist", "img", "c.png"))
	_, cached = task.Cache().Get(src)
	assert.False(t, cached)
	assert.Equal(t, int64(1), task.Cache().Stats().Evictions)

	// Deleting again is harmless.
	assert.NoError(t, task.HandleDeleted(context.Background(), src))
}

func TestImagesTaskReportsOptimizerFailure(t *testing.T) {
	p := newProject(t)
	p.write(t, []byte("junk"), "src", "img", "bad.gif")
	p.write(t, pngBytes(t), "src", "img", "good.png")

	collector := errors.NewCollector(nil)
	task := NewImagesTask(p.table.MustGet(assets.Images), &countingOptimizer{}, Deps{Reporter: collector})

	result := task.Run(context.Background())
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, task.Cache().Len())
	require.Len(t, collector.ByStage(assets.Images), 1)
}

func TestImageCache(t *testing.T) {
	cache := NewImageCache()
	hash := ContentHash([]byte("pixels"))

	assert.False(t, cache.Unchanged("src/img/c.png", hash))
	cache.Record("src/img/c.png", hash)

	// Different spellings of one path share an entry.
	assert.True(t, cache.Unchanged("./src/img/../img/c.png", hash))
	assert.False(t, cache.Unchanged("src/img/c.png", ContentHash([]byte("other"))))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	assert.True(t, cache.Evict("src/img/c.png"))
	assert.False(t, cache.Evict("src/img/c.png"))
	assert.Zero(t, cache.Len())

	cache.Record("a.png", hash)
	cache.Clear()
	assert.Zero(t, cache.Stats().Entries)
	assert.Zero(t, cache.Stats().Hits)
}

func TestFormatSaved(t *testing.T) {
	assert.Equal(t, "50 B (50.0%)", formatSaved(100, 50))
	assert.Equal(t, "0 B", formatSaved(0, 0))
}
