package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyOptimizer returns its input so tests need no real image data.
type copyOptimizer struct{}

func (copyOptimizer) Optimize(name string, src []byte) ([]byte, error) { return src, nil }

func TestMovedImagesLoseTheirOutput(t *testing.T) {
	testCases := []struct {
		name    string
		target  func(root string) string
		present []string
	}{
		{
			name:   "moved out of the source tree",
			target: func(root string) string { return filepath.Join(root, "c.png.bak") },
		},
		{
			name:    "renamed within the source tree",
			target:  func(root string) string { return filepath.Join(root, "src", "img", "sub", "d.png") },
			present: []string{"d.png"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			src := filepath.Join(root, "src", "img", "sub", "c.png")
			require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
			require.NoError(t, os.WriteFile(src, []byte("png-c"), 0644))

			table := tableUnder(t, root)
			collector := errors.NewCollector(nil)
			images := build.NewImagesTask(table.MustGet(assets.Images), copyOptimizer{}, build.Deps{Reporter: collector})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			images.Run(ctx)
			out := filepath.Join(root, "dist", "img", "c.png")
			require.FileExists(t, out)
			_, cached := images.Cache().Get(src)
			require.True(t, cached)

			fw, err := NewFileWatcher(table, 20*time.Millisecond, nil)
			require.NoError(t, err)
			dispatcher := NewDispatcher(collector, nil)
			dispatcher.Register(assets.Images, images)

			done := make(chan error, 1)
			go func() { done <- dispatcher.Watch(ctx, fw) }()
			select {
			case <-fw.Ready():
			case <-time.After(5 * time.Second):
				t.Fatal("watcher did not start")
			}

			require.NoError(t, os.Rename(src, tc.target(root)))

			require.Eventually(t, func() bool {
				_, err := os.Stat(out)
				_, cached := images.Cache().Get(src)
				return os.IsNotExist(err) && !cached
			}, 5*time.Second, 10*time.Millisecond, "output and cache entry of the old path remain")

			for _, name := range tc.present {
				p := filepath.Join(root, "dist", "img", name)
				require.Eventually(t, func() bool {
					_, err := os.Stat(p)
					return err == nil
				}, 5*time.Second, 10*time.Millisecond, "%s was not written", name)
			}
			assert.Zero(t, collector.Count())

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("watch did not stop")
			}
		})
	}
}
