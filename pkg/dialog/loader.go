package dialog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads and optionally hot-reloads form definitions from YAML files.
type Loader struct {
	dir string

	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewLoader creates a new definition loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:         dir,
		definitions: make(map[string]*Definition),
	}
}

// LoadAll loads all .yaml and .yml files from the configured directory.
// On error the previously loaded set is kept.
func (l *Loader) LoadAll() (map[string]*Definition, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read dialog dir %q: %w", l.dir, err)
	}

	result := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		def, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		if _, dup := result[def.Name]; dup {
			return nil, fmt.Errorf("load %q: %w: %q", path, ErrDuplicateID, def.Name)
		}
		result[def.Name] = def
	}

	l.mu.Lock()
	l.definitions = result
	l.mu.Unlock()

	return result, nil
}

// Get returns a loaded definition by name.
func (l *Loader) Get(name string) (*Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.definitions[name]
	return d, ok
}

// All returns all loaded definitions sorted by name.
func (l *Loader) All() []*Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]*Definition, 0, len(l.definitions))
	for _, d := range l.definitions {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (l *Loader) loadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(data, path)
}

// ParseDefinition decodes and validates one YAML definition. When the
// document has no name the file's base name is used.
func ParseDefinition(data []byte, path string) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if d.Name == "" && path != "" {
		base := filepath.Base(path)
		d.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// WatchAndReload watches the directory and calls onReload with every
// successfully reloaded set. It blocks until done is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}, onReload func([]*Definition)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, err := l.LoadAll(); err != nil {
				slog.Warn("dialog reload failed, keeping previous definitions",
					slog.String("dir", l.dir), slog.String("error", err.Error()))
				continue
			}
			if onReload != nil {
				onReload(l.All())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
