package nav

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/secopshq/console/pkg/observability"
)

// Loader serves the unfiltered navigation tree from a JSON file and hot
// reloads it when the file changes, so navigation edits do not require a
// restart. A reload that fails to parse keeps the last good tree.
type Loader struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	tree []Item

	done chan struct{}
}

// NewLoader reads the tree file once and starts watching its directory
// for changes. The initial read must succeed; later reloads are best
// effort.
func NewLoader(path string, logger *observability.Logger) (*Loader, error) {
	l := &Loader{
		path:   path,
		logger: logger.WithField("component", "nav"),
		done:   make(chan struct{}),
	}

	tree, err := readTree(path)
	if err != nil {
		return nil, err
	}
	l.tree = tree

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory rather than the file: editors and config
	// managers often replace the file, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	l.watcher = watcher

	go l.watch()
	return l, nil
}

// Tree returns the current unfiltered navigation tree.
func (l *Loader) Tree() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree
}

// Close stops the file watcher.
func (l *Loader) Close() error {
	close(l.done)
	return l.watcher.Close()
}

func (l *Loader) watch() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			l.reload()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Warn("Navigation watcher error")
		case <-l.done:
			return
		}
	}
}

func (l *Loader) reload() {
	tree, err := readTree(l.path)
	if err != nil {
		l.logger.WithError(err).WithField("path", l.path).Error("Failed to reload navigation tree, keeping previous")
		return
	}
	l.mu.Lock()
	l.tree = tree
	l.mu.Unlock()
	l.logger.WithField("items", len(tree)).Info("Reloaded navigation tree")
}

func readTree(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read navigation tree: %w", err)
	}
	var tree []Item
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse navigation tree: %w", err)
	}
	return tree, nil
}
