package builder

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/symcache/pkg/symcache"
)

func TestBuilderInternsStrings(t *testing.T) {
	t.Parallel()

	b := New()
	a := b.AddString("main")
	if again := b.AddString("main"); again != a {
		t.Fatalf("interned index changed: %d vs %d", a, again)
	}
	if other := b.AddString("helper"); other == a {
		t.Fatalf("distinct strings share index %d", a)
	}
	if len(b.stringData) != len("main")+len("helper") {
		t.Fatalf("string data not deduplicated: %q", b.stringData)
	}
}

func TestBuilderLayout(t *testing.T) {
	t.Parallel()

	b := New()
	b.SetName("x")
	b.AddFile(symcache.FileRecord{NameIdx: b.AddString("a.c"), DirectoryIdx: symcache.NoIndex, CompDirIdx: symcache.NoIndex})
	b.AddFunction(symcache.FunctionRecord{EntryAddr: 0x10, NameIdx: b.AddString("f")})
	b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: 0, FunctionIdx: 0, Line: 1, ParentIdx: symcache.NoIndex})
	b.AddRange(0x10, 0)

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	c, err := symcache.OpenBytes(data)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := c.Header()
	for name, sec := range map[string]symcache.Section{
		"strings": h.Strings, "string data": h.StringData, "files": h.Files,
		"functions": h.Functions, "source locations": h.SourceLocs, "ranges": h.Ranges,
	} {
		if sec.Offset%sectionAlign != 0 || sec.Offset < symcache.HeaderSize {
			t.Fatalf("%s section at unaligned offset %d", name, sec.Offset)
		}
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if name, err := c.Name(); err != nil || name != "x" {
		t.Fatalf("name: %q %v", name, err)
	}
}

func TestBuilderSortsRanges(t *testing.T) {
	t.Parallel()

	b := New()
	for i := 0; i < 3; i++ {
		b.AddSourceLocation(symcache.SourceLocationRecord{FileIdx: symcache.NoIndex, FunctionIdx: symcache.NoIndex, Line: uint32(i), ParentIdx: symcache.NoIndex})
	}
	b.AddRange(0x300, 2)
	b.AddRange(0x100, 0)
	b.AddRange(0x200, 1)

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	c, err := symcache.OpenBytes(data)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for addr, want := range map[uint64]uint32{0x100: 0, 0x1ff: 0, 0x200: 1, 0x3000: 2} {
		chain, ok, err := c.Lookup(addr)
		if err != nil || !ok {
			t.Fatalf("lookup %#x: %v %v", addr, ok, err)
		}
		if line, _ := chain[0].Line(); line != want {
			t.Fatalf("lookup %#x: line %d want %d", addr, line, want)
		}
	}
	// Sorting happens on a copy; insertion order is kept for later calls.
	if b.ranges[0].Start != 0x300 {
		t.Fatalf("builder ranges reordered in place")
	}
}

func TestBuilderWriteToMatchesBytes(t *testing.T) {
	t.Parallel()

	b := New()
	b.SetName("lib")
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	if err != nil {
		t.Fatalf("write to: %v", err)
	}
	if n != int64(len(data)) || !bytes.Equal(buf.Bytes(), data) {
		t.Fatalf("WriteTo wrote %d bytes, Bytes returned %d", n, len(data))
	}

	path := filepath.Join(t.TempDir(), "lib.symc")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("write file: %v", err)
	}
	c, err := symcache.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = c.Close() }()
	if name, err := c.Name(); err != nil || name != "lib" {
		t.Fatalf("name: %q %v", name, err)
	}
}

const inlineManifest = `{
  "name": "app",
  "files": [{"name": "main.c", "directory": "src", "comp_dir": "/build"}],
  "functions": [
    {"name": "main", "entry_address": "0x1000", "language": "c"},
    {"name": "helper"}
  ],
  "source_locations": [
    {"file": 0, "function": 0, "line": 12},
    {"file": 0, "function": 1, "line": 3, "parent": 0}
  ],
  "ranges": [
    {"start": 4096, "source_location": 0},
    {"start": "0x1010", "source_location": 1}
  ]
}`

func TestManifestBuildsCache(t *testing.T) {
	t.Parallel()

	m, err := ReadManifest(strings.NewReader(inlineManifest))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	b, err := m.Builder()
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	c, err := symcache.OpenBytes(data)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	chain, ok, err := c.Lookup(0x1012)
	if err != nil || !ok || len(chain) != 2 {
		t.Fatalf("lookup: %v %v %v", chain, ok, err)
	}
	fn, _, err := chain[0].Function()
	if err != nil {
		t.Fatalf("function: %v", err)
	}
	if name, _ := fn.Name(); name != "helper" {
		t.Fatalf("innermost function %q", name)
	}
	if _, ok, _ := fn.EntryAddress(); ok {
		t.Fatalf("helper has no entry address")
	}

	outer, _, _ := chain[1].Function()
	if entry, ok, _ := outer.EntryAddress(); !ok || entry != 0x1000 {
		t.Fatalf("main entry: %#x %v", entry, ok)
	}
	if lang, _ := outer.Language(); lang != symcache.LanguageC {
		t.Fatalf("main language: %v", lang)
	}
	file, _, _ := chain[1].File()
	if p, err := file.FullPath(); err != nil || p != "/build/src/main.c" {
		t.Fatalf("full path: %q %v", p, err)
	}
}

func TestManifestRejectsBadReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
	}{
		{"unknown field", `{"bogus": 1}`},
		{"bad address", `{"ranges": [{"start": "zz", "source_location": 0}]}`},
		{"file out of range", `{"source_locations": [{"file": 1, "line": 1}]}`},
		{"function out of range", `{"source_locations": [{"function": 0, "line": 1}]}`},
		{"self parent", `{"source_locations": [{"line": 1, "parent": 0}]}`},
		{"parent cycle", `{"source_locations": [{"line": 1, "parent": 1}, {"line": 2, "parent": 0}]}`},
		{"range target", `{"source_locations": [{"line": 1}], "ranges": [{"start": 1, "source_location": 1}]}`},
		{"duplicate start", `{"source_locations": [{"line": 1}], "ranges": [{"start": 1, "source_location": 0}, {"start": "0x1", "source_location": 0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := ReadManifest(strings.NewReader(tt.json))
			if err == nil {
				_, err = m.Builder()
			}
			if !errors.Is(err, ErrInvalidManifest) {
				t.Fatalf("expected invalid manifest, got %v", err)
			}
		})
	}
}

func TestAddressJSON(t *testing.T) {
	t.Parallel()

	var a Address
	if err := a.UnmarshalJSON([]byte(`"0x1f"`)); err != nil || a != 0x1f {
		t.Fatalf("hex string: %v %v", a, err)
	}
	if err := a.UnmarshalJSON([]byte(`42`)); err != nil || a != 42 {
		t.Fatalf("number: %v %v", a, err)
	}
	out, err := Address(0xabc).MarshalJSON()
	if err != nil || string(out) != `"0xabc"` {
		t.Fatalf("marshal: %s %v", out, err)
	}
}
