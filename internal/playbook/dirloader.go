package playbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirLoader loads playbooks from `<dir>/<id>.json` files, caching decoded
// definitions in memory and invalidating the cache when the directory
// changes on disk.
type DirLoader struct {
	dir string

	mu      sync.RWMutex
	cache   map[string]*Playbook
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewDirLoader starts watching dir for changes. If the watcher cannot be
// created (e.g. the platform lacks inotify/kqueue support), the loader
// still works but never invalidates its cache on external file changes.
func NewDirLoader(dir string) (*DirLoader, error) {
	l := &DirLoader{dir: dir, cache: map[string]*Playbook{}}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "playbook: fsnotify unavailable (%v), cache will not auto-invalidate\n", err)
		return l, nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		fmt.Fprintf(os.Stderr, "playbook: failed to watch %s (%v), cache will not auto-invalidate\n", dir, err)
		return l, nil
	}

	l.watcher = watcher
	l.done = make(chan struct{})
	go l.watch()
	return l, nil
}

func (l *DirLoader) watch() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			id := playbookIDFromPath(event.Name)
			if id == "" {
				continue
			}
			l.mu.Lock()
			delete(l.cache, id)
			l.mu.Unlock()
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		case <-l.done:
			return
		}
	}
}

// Close stops the directory watch goroutine. Safe to call on a loader
// whose watcher failed to start.
func (l *DirLoader) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}

// Load implements workflow.Loader.
func (l *DirLoader) Load(id string) (*Playbook, error) {
	l.mu.RLock()
	if pb, ok := l.cache[id]; ok {
		l.mu.RUnlock()
		return pb, nil
	}
	l.mu.RUnlock()

	path := filepath.Join(l.dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("playbook: reading %s: %w", path, err)
	}

	var pb Playbook
	if err := json.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("playbook: decoding %s: %w", path, err)
	}
	if pb.ID == "" {
		pb.ID = id
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[id] = &pb
	l.mu.Unlock()
	return &pb, nil
}

func playbookIDFromPath(path string) string {
	base := filepath.Base(path)
	const ext = ".json"
	if len(base) <= len(ext) || base[len(base)-len(ext):] != ext {
		return ""
	}
	return base[:len(base)-len(ext)]
}
