// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watcher already running")

// defaultIgnores are editor and VCS paths that never trigger a callback.
var defaultIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.#*",
	"**/.DS_Store",
}

type (
	// Config holds the parameters of a Watcher.
	Config struct {
		// Dir is the root of the watched tree.
		Dir string
		// Pattern selects the files that trigger callbacks, relative to Dir.
		// Empty matches every file.
		Pattern string
		// Debounce is the quiet period before the callback fires.
		Debounce time.Duration
		// OnChange receives the sorted paths, relative to Dir, that changed
		// during the debounce window. Calls never overlap.
		OnChange func(ctx context.Context, changed []string)
		Logger   *log.Logger
	}

	// Watcher monitors a directory tree. Run must be called at most once.
	Watcher struct {
		cfg     Config
		dir     string
		fsw     *fsnotify.Watcher
		logger  *log.Logger
		running atomic.Bool

		mu      sync.Mutex
		pending map[string]struct{}
		timer   *time.Timer
		busy    bool
	}
)

// New registers every directory under cfg.Dir. Directories created later are
// added as their creation is observed.
func New(cfg Config) (*Watcher, error) {
	if cfg.Pattern != "" && !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("watch: invalid pattern %q", cfg.Pattern)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default().WithPrefix("watch")
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", cfg.Dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", dir)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		cfg:     cfg,
		dir:     dir,
		fsw:     fsw,
		logger:  cfg.Logger,
		pending: make(map[string]struct{}),
	}
	if err := w.addTree(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done. It returns nil on cancellation and
// an error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing watcher failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			w.handle(ctx, evt)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatal(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event) {
	rel, err := filepath.Rel(w.dir, evt.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if ignored(rel) {
		return
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(evt.Name); err != nil {
				w.logger.Warn("watching new directory failed", "dir", evt.Name, "err", err)
			}
			return
		}
	}
	if w.cfg.Pattern != "" {
		if ok, _ := doublestar.Match(w.cfg.Pattern, rel); !ok {
			return
		}
	}

	w.logger.Debug("change", "path", rel, "op", evt.Op.String())
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.cfg.Debounce, func() { w.fire(ctx) })
	} else {
		w.timer.Reset(w.cfg.Debounce)
	}
}

// fire hands the pending paths to OnChange. A change arriving while a
// callback runs is delivered by a later fire.
func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	if w.busy {
		w.timer.Reset(w.cfg.Debounce)
		w.mu.Unlock()
		return
	}
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changed := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)
	w.busy = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
	}()
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(ctx, changed)
	}
}

// addTree watches root and every non-ignored directory below it.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.dir, path); relErr == nil && rel != "." && ignored(filepath.ToSlash(rel)+"/") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

func ignored(rel string) bool {
	for _, pat := range defaultIgnores {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
