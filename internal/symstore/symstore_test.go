package symstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samcharles93/symcache/pkg/symcache"
	"github.com/samcharles93/symcache/pkg/symcache/builder"
)

// writeTestCache writes a cache where main() covers 0x1000-0x1fff and helper() is inlined
// into it at 0x1010-0x101f.
func writeTestCache(t *testing.T, dir, name string) string {
	t.Helper()
	b := builder.New()
	b.SetName(name)
	file := b.AddFile(symcache.FileRecord{
		NameIdx:      b.AddString("main.c"),
		DirectoryIdx: b.AddString("src"),
		CompDirIdx:   b.AddString("/build"),
	})
	mainFn := b.AddFunction(symcache.FunctionRecord{EntryAddr: 0x1000, NameIdx: b.AddString("main"), Language: symcache.LanguageC})
	helperFn := b.AddFunction(symcache.FunctionRecord{EntryAddr: symcache.NoAddress, NameIdx: b.AddString("helper")})
	outer := b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: file, FunctionIdx: mainFn, Line: 10, ParentIdx: symcache.NoIndex})
	call := b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: file, FunctionIdx: mainFn, Line: 12, ParentIdx: symcache.NoIndex})
	inl := b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: file, FunctionIdx: helperFn, Line: 3, ParentIdx: call})
	b.AddRange(0x1000, outer)
	b.AddRange(0x1010, inl)
	b.AddRange(0x1020, outer)

	path := filepath.Join(dir, name+Ext)
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	return path
}

func TestFileSymbolicate(t *testing.T) {
	t.Parallel()

	path := writeTestCache(t, t.TempDir(), "app")
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			t.Fatalf("close: %v", cerr)
		}
	}()

	if f.Name() != "app" {
		t.Fatalf("name: got %q", f.Name())
	}

	frames, err := f.Symbolicate(0x1012)
	if err != nil {
		t.Fatalf("symbolicate: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames: got %d want 2 (%+v)", len(frames), frames)
	}
	if frames[0].Function != "helper" || frames[0].Line != 3 || !frames[0].Inlined {
		t.Fatalf("inner frame: %+v", frames[0])
	}
	if frames[1].Function != "main" || frames[1].Line != 12 || frames[1].Inlined {
		t.Fatalf("outer frame: %+v", frames[1])
	}
	if frames[1].File != "/build/src/main.c" || frames[1].Language != "c" {
		t.Fatalf("outer frame file/language: %+v", frames[1])
	}
	if frames[1].EntryAddress == nil || *frames[1].EntryAddress != 0x1000 {
		t.Fatalf("outer frame entry address: %v", frames[1].EntryAddress)
	}

	if frames, err := f.Symbolicate(0x10); err != nil || len(frames) != 0 {
		t.Fatalf("unmapped address: %v %v", frames, err)
	}
}

func TestFileListings(t *testing.T) {
	t.Parallel()

	f, err := Open(writeTestCache(t, t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	fns, err := f.Functions(0, 0)
	if err != nil {
		t.Fatalf("functions: %v", err)
	}
	if len(fns) != 2 || fns[0].Name != "main" || fns[1].Name != "helper" {
		t.Fatalf("functions: %+v", fns)
	}
	page, err := f.Functions(1, 1)
	if err != nil || len(page) != 1 || page[0].Index != 1 {
		t.Fatalf("functions page: %+v %v", page, err)
	}
	if empty, err := f.Functions(5, 10); err != nil || len(empty) != 0 {
		t.Fatalf("functions past end: %+v %v", empty, err)
	}
	if first, err := f.Functions(-3, 1); err != nil || len(first) != 1 || first[0].Index != 0 {
		t.Fatalf("negative offset: %+v %v", first, err)
	}
	if empty, err := f.Files(1, 0); err != nil || len(empty) != 0 {
		t.Fatalf("files past end: %+v %v", empty, err)
	}

	files, err := f.Files(0, 0)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	want := []FileInfo{{Index: 0, Path: "/build/src/main.c", Name: "main.c", Dir: "src", CompDir: "/build"}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}

	info, err := f.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.DebugName != "app" || info.Stats.Functions != 2 || !info.HasLineInfo || info.Size == 0 {
		t.Fatalf("info: %+v", info)
	}
}

func TestPageBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		offset, limit int
		count         uint32
		lo, hi        int
	}{
		{0, 0, 10, 0, 10},
		{2, 3, 10, 2, 5},
		{8, 5, 10, 8, 10},
		{12, 5, 10, 10, 10},
		{-1, 2, 10, 0, 2},
		{0, -1, 4, 0, 4},
		{0, 5, 0, 0, 0},
	}
	for _, tc := range tests {
		lo, hi := pageBounds(tc.offset, tc.limit, tc.count)
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("pageBounds(%d, %d, %d): got [%d, %d), want [%d, %d)", tc.offset, tc.limit, tc.count, lo, hi, tc.lo, tc.hi)
		}
	}
}

func TestRegistryGetAndEvict(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		writeTestCache(t, dir, name)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := prometheus.NewRegistry()
	r, err := NewRegistry(Options{Dir: dir, OpenCaches: 2, Registerer: reg, Verify: true})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	names, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fatalf("list: %v", names)
	}

	first, err := r.Get("a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	again, err := r.Get("a")
	if err != nil || again != first {
		t.Fatalf("second get should hit the open cache: %v", err)
	}
	for _, name := range []string{"b", "c"} {
		if _, err := r.Get(name); err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
	}

	if r.Len() != 2 {
		t.Fatalf("open caches: got %d want 2", r.Len())
	}
	if got := testutil.ToFloat64(r.metrics.openCaches); got != 2 {
		t.Fatalf("open caches gauge: %v", got)
	}
	if got := testutil.ToFloat64(r.metrics.cacheOperations.WithLabelValues("evict", statusSuccess)); got != 1 {
		t.Fatalf("evictions: %v", got)
	}
	if got := testutil.ToFloat64(r.metrics.cacheOperations.WithLabelValues("hit", statusSuccess)); got != 1 {
		t.Fatalf("hits: %v", got)
	}

	// An evicted cache stays usable by whoever still holds it.
	if frames, err := first.Symbolicate(0x1000); err != nil || len(frames) != 1 {
		t.Fatalf("evicted cache: %v %v", frames, err)
	}

	r.Purge()
	if r.Len() != 0 || testutil.ToFloat64(r.metrics.openCaches) != 0 {
		t.Fatalf("purge left %d caches open", r.Len())
	}
}

func TestRegistryErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken"+Ext), []byte("not a cache"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := NewRegistry(Options{Dir: dir})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("missing cache: %v", err)
	}
	for _, name := range []string{"", "..", "../etc/passwd", `a\b`} {
		if _, err := r.Get(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("name %q: %v", name, err)
		}
	}
	if _, err := r.Get("broken"); !errors.Is(err, symcache.ErrHeaderTooSmall) {
		t.Fatalf("broken cache: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("failed opens must not be cached")
	}

	if _, err := NewRegistry(Options{Dir: filepath.Join(dir, "nope")}); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestRegistrySymbolicate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestCache(t, dir, "app")
	r, err := NewRegistry(Options{Dir: dir, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	results, err := r.Symbolicate(context.Background(), "app", []uint64{0x1014, 0x10, 0x2000})
	if err != nil {
		t.Fatalf("symbolicate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: %+v", results)
	}
	if len(results[0].Frames) != 2 || results[0].Address != 0x1014 {
		t.Fatalf("inlined result: %+v", results[0])
	}
	if results[1].Frames == nil || len(results[1].Frames) != 0 || results[1].Error != "" {
		t.Fatalf("unmapped result: %+v", results[1])
	}
	if len(results[2].Frames) != 1 || results[2].Frames[0].Line != 10 {
		t.Fatalf("tail result: %+v", results[2])
	}
	if got := testutil.ToFloat64(r.metrics.symbolicateAddresses.WithLabelValues(resultFound)); got != 2 {
		t.Fatalf("found counter: %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Symbolicate(ctx, "app", []uint64{0x1000}); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled context: %v", err)
	}
	if _, err := r.Symbolicate(context.Background(), "nope", nil); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("missing cache: %v", err)
	}
}

func TestMetricsShareRegisterer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := newMetrics(reg)
	b := newMetrics(reg)
	if a.openCaches != b.openCaches {
		t.Fatalf("second registration should reuse the existing collector")
	}
}
