package symstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInvalidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeTestCache(t, dir, "app")
	r, err := NewRegistry(Options{Dir: dir, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := r.Get("app"); err != nil {
		t.Fatalf("get: %v", err)
	}

	r.invalidate(fsnotify.Event{Name: path, Op: fsnotify.Chmod})
	r.invalidate(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write})
	if r.Len() != 1 {
		t.Fatalf("unrelated events should keep the cache open, len=%d", r.Len())
	}

	r.invalidate(fsnotify.Event{Name: path, Op: fsnotify.Create})
	if r.Len() != 0 {
		t.Fatalf("cache should be dropped, len=%d", r.Len())
	}
	if got := testutil.ToFloat64(r.metrics.cacheOperations.WithLabelValues("invalidate", statusSuccess)); got != 1 {
		t.Fatalf("invalidate counter: %v", got)
	}
	if got := testutil.ToFloat64(r.metrics.openCaches); got != 0 {
		t.Fatalf("open caches gauge: %v", got)
	}
}

func TestWatchDropsReplacedCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestCache(t, dir, "app")
	r, err := NewRegistry(Options{Dir: dir, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := r.Get("app"); err != nil {
		t.Fatalf("get: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("watch: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache was not dropped after the file was removed")
		}
		// Keep touching the file until the watcher is up and has seen an event.
		_ = os.Remove(filepath.Join(dir, "app"+Ext))
		writeTestCache(t, dir, "app")
		time.Sleep(20 * time.Millisecond)
	}

	f, err := r.Get("app")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if f.Name() != "app" {
		t.Fatalf("name: %q", f.Name())
	}
}
