package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DropFolder watches one directory and reports each regular file that
// appears in it once the file has stopped changing for the debounce window.
// A file is reported again only after it was removed and recreated.
type DropFolder struct {
	dir      string
	watcher  *fsnotify.Watcher
	filter   *PatternFilter
	debounce time.Duration
	onFile   func(path string)
	logger   *slog.Logger

	mu       sync.Mutex
	reported map[string]bool
}

// NewDropFolder creates a watcher for dir. filter may be nil.
func NewDropFolder(dir string, debounce time.Duration, filter *PatternFilter, onFile func(path string), logger *slog.Logger) (*DropFolder, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("drop folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("drop folder: %s is not a directory", dir)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if filter == nil {
		filter = NewPatternFilter(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DropFolder{
		dir:      dir,
		watcher:  w,
		filter:   filter,
		debounce: debounce,
		onFile:   onFile,
		logger:   logger,
		reported: make(map[string]bool),
	}, nil
}

// Run processes filesystem events until ctx is done.
func (d *DropFolder) Run(ctx context.Context) error {
	defer d.watcher.Close()

	debouncer := NewDebouncer(d.debounce, d.settle)
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
				debouncer.Cancel(event.Name)
				d.mu.Lock()
				delete(d.reported, event.Name)
				d.mu.Unlock()
			case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
				if d.filter.Matches(event.Name) {
					debouncer.Trigger(event.Name)
				}
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func (d *DropFolder) settle(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	d.mu.Lock()
	seen := d.reported[path]
	d.reported[path] = true
	d.mu.Unlock()
	if seen {
		d.logger.Debug("drop folder file changed again, ignoring", "path", path)
		return
	}
	if d.onFile != nil {
		d.onFile(path)
	}
}
