package symstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/symcache/internal/logger"
)

const DefaultOpenCaches = 64

type Options struct {
	// Dir holds the *.symc files served by the registry.
	Dir string
	// OpenCaches bounds how many caches stay open at once. Defaults to DefaultOpenCaches.
	OpenCaches int
	// Verify runs a full structural check on every cache when it is first opened.
	Verify bool

	Registerer prometheus.Registerer
	Logger     logger.Logger
}

// Registry resolves cache names to files under one directory and keeps the most recently
// used ones open.
//
// Evicted caches are not closed: a request may still be resolving against them. Their
// mapping is released once the last reference is gone.
type Registry struct {
	dir     string
	verify  bool
	log     logger.Logger
	metrics *metrics

	mu   sync.Mutex // serialises opens
	open *lru.Cache[string, *File]
}

// Result is the symbolication of one address. Frames is empty for an unmapped address.
type Result struct {
	Address uint64  `json:"address"`
	Frames  []Frame `json:"frames"`
	Error   string  `json:"error,omitempty"`
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Dir == "" {
		return nil, errors.New("symstore: caches directory is required")
	}
	st, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("symstore: caches directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("symstore: %s is not a directory", opts.Dir)
	}
	if opts.OpenCaches <= 0 {
		opts.OpenCaches = DefaultOpenCaches
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	r := &Registry{
		dir:     opts.Dir,
		verify:  opts.Verify,
		log:     log.With("component", "symstore"),
		metrics: newMetrics(opts.Registerer),
	}
	r.open, err = lru.NewWithEvict[string, *File](opts.OpenCaches, r.onEvict)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) onEvict(name string, _ *File) {
	r.metrics.cacheOperations.WithLabelValues("evict", statusSuccess).Inc()
	r.metrics.openCaches.Dec()
	r.log.Debug("cache evicted", "name", name)
}

func (r *Registry) Dir() string { return r.dir }

// List returns the names of all caches in the directory, sorted.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the open cache called name, opening it on first use.
func (r *Registry) Get(name string) (*File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if f, ok := r.open.Get(name); ok {
		r.metrics.cacheOperations.WithLabelValues("hit", statusSuccess).Inc()
		return f, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.open.Get(name); ok {
		r.metrics.cacheOperations.WithLabelValues("hit", statusSuccess).Inc()
		return f, nil
	}

	start := time.Now()
	f, err := r.openFile(filepath.Join(r.dir, name+Ext))
	r.metrics.openDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.metrics.cacheOperations.WithLabelValues("miss", statusNotFound).Inc()
			return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, name)
		}
		r.metrics.cacheOperations.WithLabelValues("miss", statusError).Inc()
		r.log.Warn("failed to open cache", "name", name, "error", err)
		return nil, err
	}

	r.metrics.cacheOperations.WithLabelValues("miss", statusSuccess).Inc()
	r.metrics.openCaches.Inc()
	r.open.Add(name, f)
	r.log.Debug("cache opened", "name", name, "path", f.Path(), "elapsed", time.Since(start))
	return f, nil
}

func (r *Registry) openFile(path string) (*File, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	if r.verify {
		if err := f.Cache().Verify(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("verify %s: %w", path, err)
		}
	}
	return f, nil
}

// Info describes the cache called name.
func (r *Registry) Info(name string) (Info, error) {
	f, err := r.Get(name)
	if err != nil {
		return Info{}, err
	}
	return f.Info()
}

// Symbolicate resolves every address against the cache called name. A failure on one
// address is reported in its Result and does not abort the others.
func (r *Registry) Symbolicate(ctx context.Context, name string, addrs []uint64) ([]Result, error) {
	start := time.Now()
	status := statusSuccess
	defer func() {
		r.metrics.symbolicateDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	f, err := r.Get(name)
	if err != nil {
		status = statusError
		if errors.Is(err, ErrCacheNotFound) {
			status = statusNotFound
		}
		return nil, err
	}

	out := make([]Result, len(addrs))
	for i, addr := range addrs {
		if err := ctx.Err(); err != nil {
			status = statusError
			return nil, err
		}
		out[i].Address = addr
		frames, err := f.Symbolicate(addr)
		switch {
		case err != nil:
			out[i].Error = err.Error()
			r.metrics.symbolicateAddresses.WithLabelValues(resultError).Inc()
			r.log.Warn("lookup failed", "cache", name, "address", fmt.Sprintf("%#x", addr), "error", err)
		case len(frames) == 0:
			out[i].Frames = []Frame{}
			r.metrics.symbolicateAddresses.WithLabelValues(resultUnmapped).Inc()
		default:
			out[i].Frames = frames
			r.metrics.symbolicateAddresses.WithLabelValues(resultFound).Inc()
		}
	}
	return out, nil
}

// Purge drops every open cache from the registry.
func (r *Registry) Purge() {
	r.open.Purge()
}

// Len reports how many caches are currently open.
func (r *Registry) Len() int {
	return r.open.Len()
}

// ValidateName rejects names that would escape the registry directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
