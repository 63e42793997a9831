// Package watcher turns filesystem notifications below the source
// directories into per-category change events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is a change to a file selected by one category glob.
type Event struct {
	Category string
	Kind     EventType
	Path     string
}

// FileWatcher watches the base directory of every category and emits one
// debounced Event per changed path.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	table     *assets.Table
	debouncer *Debouncer
	errors    chan error
	ready     chan struct{}
	logger    logging.Logger

	watched map[string]bool
	mutex   sync.Mutex
}

// NewFileWatcher creates a watcher for the categories of table. Events for
// the same path arriving within debounceDelay of each other are merged and
// the last one wins.
func NewFileWatcher(table *assets.Table, debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &FileWatcher{
		watcher:   w,
		table:     table,
		debouncer: NewDebouncer(debounceDelay, 256),
		errors:    make(chan error, 16),
		ready:     make(chan struct{}),
		logger:    logger.WithComponent("watch"),
		watched:   make(map[string]bool),
	}, nil
}

// Events returns the channel of debounced events.
func (fw *FileWatcher) Events() <-chan Event {
	return fw.debouncer.Output()
}

// Errors returns watcher failures. They never stop the watch.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// Start registers the category base directories and begins translating
// notifications until ctx is done. A base directory that does not exist yet
// is skipped with a warning.
func (fw *FileWatcher) Start(ctx context.Context) error {
	for _, c := range fw.table.All() {
		base := c.Base()
		if _, err := os.Stat(base); os.IsNotExist(err) {
			fw.logger.Warn(ctx, err, "Source directory does not exist, not watching", "category", c.Name(), "path", base)
			continue
		}

		var err error
		if c.Recursive() {
			err = fw.addRecursive(base)
		} else {
			err = fw.addPath(base)
		}
		if err != nil {
			return fmt.Errorf("watching %s for %s: %w", base, c.Name(), err)
		}
		fw.logger.Debug(ctx, "Watching", "category", c.Name(), "path", base, "recursive", c.Recursive())
	}

	go fw.watchLoop(ctx)
	close(fw.ready)
	return nil
}

// Ready is closed once every base directory is registered.
func (fw *FileWatcher) Ready() <-chan struct{} {
	return fw.ready
}

// Stop releases the underlying watcher.
func (fw *FileWatcher) Stop() error {
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

// WatchedPaths returns the directories currently registered.
func (fw *FileWatcher) WatchedPaths() []string {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	paths := make([]string, 0, len(fw.watched))
	for p := range fw.watched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (fw *FileWatcher) addPath(dir string) error {
	dir = filepath.Clean(dir)
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	if fw.watched[dir] {
		return nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return err
	}
	fw.watched[dir] = true
	return nil
}

func (fw *FileWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.addPath(p)
		}
		return nil
	})
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.sendError(err)
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	// Permission changes carry no content change.
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			fw.watchNewDir(ctx, event.Name)
			return
		}
	}

	category, ok := fw.table.Classify(event.Name)
	if !ok {
		return
	}

	fw.debouncer.Add(Event{
		Category: category.Name(),
		Kind:     resolveKind(kindOf(event.Op), event.Name),
		Path:     event.Name,
	})
}

// watchNewDir extends recursive watches to a directory created below one of
// their roots.
func (fw *FileWatcher) watchNewDir(ctx context.Context, dir string) {
	for _, c := range fw.table.All() {
		if !c.Recursive() {
			continue
		}
		rel, err := c.Rel(dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if err := fw.addRecursive(dir); err != nil {
			fw.sendError(fmt.Errorf("watching new directory %s: %w", dir, err))
			return
		}
		fw.logger.Debug(ctx, "Watching new directory", "category", c.Name(), "path", dir)
		fw.rescan(c, dir)
		return
	}
}

// rescan emits created events for files that landed in dir before its watch
// was registered.
func (fw *FileWatcher) rescan(c assets.Category, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && c.Match(p) {
			fw.debouncer.Add(Event{Category: c.Name(), Kind: EventTypeCreated, Path: p})
		}
		return nil
	})
}

func (fw *FileWatcher) sendError(err error) {
	select {
	case fw.errors <- err:
	default:
		fw.logger.Warn(context.Background(), err, "Dropped watcher error")
	}
}

// resolveKind reports a rename whose old path is gone as a deletion. fsnotify
// sends Rename for the old name of a file moved away, within or out of the
// watched tree; the new name, if watched, arrives as Create.
func resolveKind(kind EventType, path string) EventType {
	if kind == EventTypeRenamed && !exists(path) {
		return EventTypeDeleted
	}
	return kind
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func kindOf(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	default:
		return EventTypeModified
	}
}
