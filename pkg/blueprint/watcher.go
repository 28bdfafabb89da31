package blueprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// DirFetcher serves custom blueprint documents from a directory. The custom
// id of a document is its file name without extension.
type DirFetcher struct {
	Dir string
}

// Blueprint implements CustomFetcher.
func (f DirFetcher) Blueprint(_ context.Context, customID string) (Document, error) {
	if strings.ContainsAny(customID, `/\`) || customID == "" || customID == "." || customID == ".." {
		return Document{}, fmt.Errorf("invalid custom blueprint id %q", customID)
	}

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(f.Dir, customID+ext)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Document{}, err
		}
		return ReadFile(path)
	}

	return Document{}, fmt.Errorf("custom blueprint %q not found in %s", customID, f.Dir)
}

// Watcher reloads custom blueprints into a Cache whenever a document in the
// watched directory changes. Invalid documents are logged and the previously
// cached blueprint stays in place.
type Watcher struct {
	dir    string
	cache  *Cache
	logger *slog.Logger

	// reloaded is notified after every processed event, for tests.
	reloaded chan string
}

// NewWatcher creates a watcher over dir feeding cache.
func NewWatcher(dir string, cache *Cache, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:    dir,
		cache:  cache,
		logger: logger,
	}
}

// Notify returns a channel receiving the custom id of every processed change.
// It must be called before Run.
func (w *Watcher) Notify() <-chan string {
	w.reloaded = make(chan string, 16)
	return w.reloaded
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating blueprint watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching blueprint dir: %w", err)
	}

	w.logger.Info("watching blueprint directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsDocumentFile(event.Name) {
				continue
			}
			w.handle(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("blueprint watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	customID := strings.TrimSuffix(base, filepath.Ext(base))
	src := Source{Kind: KindCustom, CustomID: customID}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.cache.Invalidate(src)
		w.logger.Info("custom blueprint removed", "custom_id", customID)

	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		bp, err := ParseFile(event.Name)
		if err != nil {
			w.logger.Warn("ignoring invalid blueprint",
				"custom_id", customID,
				"error", err,
			)
			break
		}
		w.cache.Put(src, bp)
		w.logger.Info("custom blueprint reloaded",
			"custom_id", customID,
			"vertices", len(bp.Vertices()),
		)

	default:
		return
	}

	if w.reloaded != nil {
		select {
		case w.reloaded <- customID:
		default:
		}
	}
}
