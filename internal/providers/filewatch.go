package providers

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/dedupe"
	"github.com/smykla-skalski/vigil/internal/pathutil"
	"github.com/smykla-skalski/vigil/pkg/config"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

// FileWatchName is the filewatch provider's registry name.
const FileWatchName = "filewatch"

// EventTypeFileChange is emitted for filesystem changes under the
// watched roots.
const EventTypeFileChange = "filechange"

// FileWatch emits events for filesystem changes under configured roots,
// filtered by glob patterns and debounced with a bounded recency set.
type FileWatch struct {
	store  *cfgstore.Store
	logger logger.Logger

	mu      sync.Mutex
	emit    plugin.EmitFunc
	roots   []string
	include []string
	exclude []string
	recent  *dedupe.RecencySet
	watcher *fsnotify.Watcher
	done    chan struct{}
	emitted uint64
	muted   uint64
}

// NewFileWatch constructs the filewatch provider.
func NewFileWatch(store *cfgstore.Store, log logger.Logger) (plugin.Plugin, error) {
	return &FileWatch{
		store:  store,
		logger: log,
	}, nil
}

// Name implements plugin.Plugin.
func (w *FileWatch) Name() string {
	return FileWatchName
}

// RequiresElevation implements plugin.Plugin.
func (*FileWatch) RequiresElevation() bool {
	return false
}

// Initialize reads the provider's document and validates the patterns.
func (w *FileWatch) Initialize(context.Context) error {
	cfg, err := cfgstore.LoadPluginConfig(
		w.store, "provider", FileWatchName, config.DefaultFileWatchConfig(),
	)
	if err != nil {
		return err
	}

	for _, pattern := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Newf("invalid glob pattern %q", pattern)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	roots := make([]string, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		roots = append(roots, pathutil.ExpandPathSilent(root))
	}

	w.roots = roots
	w.include = cfg.Include
	w.exclude = cfg.Exclude
	w.recent = dedupe.NewRecencySet(cfg.GetDebounce(), cfg.GetDedupeCap())

	return nil
}

// SetEmitter implements plugin.Provider.
func (w *FileWatch) SetEmitter(emit plugin.EmitFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.emit = emit
}

// Start opens the watcher and walks every root recursively.
func (w *FileWatch) Start(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	for _, root := range w.roots {
		if err := addRecursive(watcher, root); err != nil {
			w.logger.Warn("failed to watch root", "root", root, "error", err)
		}
	}

	w.watcher = watcher
	w.done = make(chan struct{})

	go w.loop(watcher, w.done)

	return nil
}

// Stop closes the watcher. Idempotent.
func (w *FileWatch) Stop() error {
	w.mu.Lock()

	if w.watcher == nil {
		w.mu.Unlock()

		return nil
	}

	watcher := w.watcher
	done := w.done
	w.watcher = nil
	w.mu.Unlock()

	err := watcher.Close()
	<-done

	return errors.Wrap(err, "failed to close watcher")
}

// DebugSnapshot implements plugin.Plugin.
func (w *FileWatch) DebugSnapshot() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := map[string]any{
		"roots":   w.roots,
		"emitted": w.emitted,
		"muted":   w.muted,
		"running": w.watcher != nil,
	}

	if w.recent != nil {
		snapshot["tracked_paths"] = w.recent.Len()
	}

	return snapshot
}

func (w *FileWatch) loop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}

			w.handleFsEvent(watcher, evt)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *FileWatch) handleFsEvent(watcher *fsnotify.Watcher, evt fsnotify.Event) {
	// New directories enter the watch set so nested changes are seen.
	if evt.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := addRecursive(watcher, evt.Name); err != nil {
				w.logger.Debug("failed to watch new directory", "path", evt.Name, "error", err)
			}
		}
	}

	if !w.matches(evt.Name) {
		return
	}

	w.mu.Lock()
	recent := w.recent
	emit := w.emit
	w.mu.Unlock()

	if recent != nil && recent.Observe(evt.Name+"|"+evt.Op.String()) {
		w.mu.Lock()
		w.muted++
		w.mu.Unlock()

		return
	}

	if emit == nil {
		return
	}

	w.mu.Lock()
	w.emitted++
	w.mu.Unlock()

	emit(event.New(EventTypeFileChange, FileWatchName).
		Set("path", evt.Name).
		Set("operation", strings.ToLower(evt.Op.String())))
}

// matches applies the include patterns (empty set matches everything)
// and then the exclude patterns.
func (w *FileWatch) matches(path string) bool {
	w.mu.Lock()
	include := w.include
	exclude := w.exclude
	w.mu.Unlock()

	slashed := filepath.ToSlash(path)

	if len(include) > 0 {
		matched := false

		for _, pattern := range include {
			if ok, _ := doublestar.Match(pattern, slashed); ok {
				matched = true

				break
			}
		}

		if !matched {
			return false
		}
	}

	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return false
		}
	}

	return true
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			return nil
		}

		return watcher.Add(path)
	})
}
