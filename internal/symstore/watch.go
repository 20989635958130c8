package symstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

const invalidatingOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch drops caches from the registry when their file is replaced, rewritten or removed,
// so the next Get opens the current contents. It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("symstore: watch: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(r.dir); err != nil {
		return fmt.Errorf("symstore: watch %s: %w", r.dir, err)
	}
	r.log.Debug("watching caches directory", "dir", r.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			r.invalidate(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("watch error", "dir", r.dir, "error", err)
		}
	}
}

func (r *Registry) invalidate(ev fsnotify.Event) {
	if ev.Op&invalidatingOps == 0 {
		return
	}
	base := filepath.Base(ev.Name)
	if !strings.HasSuffix(base, Ext) {
		return
	}
	name := strings.TrimSuffix(base, Ext)
	if r.open.Remove(name) {
		r.metrics.cacheOperations.WithLabelValues("invalidate", statusSuccess).Inc()
		r.log.Info("cache changed on disk, dropped", "name", name, "op", ev.Op.String())
	}
}
