// Package builder writes SymCache files.
//
// The builder is a plain table writer: it does not check that the indices it is given make
// sense, so it can also produce broken caches for tests. Use Manifest for a
// validated, declarative input.
package builder

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/samcharles93/symcache/pkg/symcache"
)

const sectionAlign = 8

var ErrTooLarge = errors.New("builder: table exceeds format limits")

// Builder accumulates tables in memory and serialises them with Bytes or WriteTo.
type Builder struct {
	nameIdx uint32

	stringData []byte
	strings    []symcache.StringRef
	interned   map[string]uint32

	files     []symcache.FileRecord
	functions []symcache.FunctionRecord
	locs      []symcache.SourceLocationRecord
	ranges    []symcache.RangeEntry

	// PreserveRangeOrder writes ranges in insertion order instead of sorting them by start.
	PreserveRangeOrder bool
}

// New returns an empty builder. The cache has no name until SetName is called.
func New() *Builder {
	return &Builder{
		nameIdx:  symcache.NoIndex,
		interned: make(map[string]uint32),
	}
}

// AddString interns s and returns its string table index.
func (b *Builder) AddString(s string) uint32 {
	if idx, ok := b.interned[s]; ok {
		return idx
	}
	idx := b.AddStringRef(symcache.StringRef{
		Offset: uint32(len(b.stringData)),
		Len:    uint32(len(s)),
	})
	b.stringData = append(b.stringData, s...)
	b.interned[s] = idx
	return idx
}

// AddStringRef appends a raw string table record without touching the string data.
func (b *Builder) AddStringRef(ref symcache.StringRef) uint32 {
	b.strings = append(b.strings, ref)
	return uint32(len(b.strings) - 1)
}

// AppendStringData appends raw bytes to the string data region and returns their offset.
func (b *Builder) AppendStringData(p []byte) uint32 {
	off := uint32(len(b.stringData))
	b.stringData = append(b.stringData, p...)
	return off
}

// SetName labels the cache.
func (b *Builder) SetName(name string) {
	b.nameIdx = b.AddString(name)
}

// SetNameIndex sets the raw name string index.
func (b *Builder) SetNameIndex(idx uint32) {
	b.nameIdx = idx
}

func (b *Builder) AddFile(rec symcache.FileRecord) uint32 {
	b.files = append(b.files, rec)
	return uint32(len(b.files) - 1)
}

func (b *Builder) AddFunction(rec symcache.FunctionRecord) uint32 {
	b.functions = append(b.functions, rec)
	return uint32(len(b.functions) - 1)
}

func (b *Builder) AddSourceLocation(rec symcache.SourceLocationRecord) uint32 {
	b.locs = append(b.locs, rec)
	return uint32(len(b.locs) - 1)
}

// AddRange maps addresses from start on to the source location sl.
func (b *Builder) AddRange(start uint64, sl uint32) {
	b.ranges = append(b.ranges, symcache.RangeEntry{Start: start, SourceLoc: sl})
}

// Bytes serialises the cache.
func (b *Builder) Bytes() ([]byte, error) {
	return b.encode()
}

// WriteFile serialises the cache to path, replacing any existing file.
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to a temporary file next to path and renames it into place.
// Readers that mapped the previous file keep seeing its old contents.
func WriteAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteTo serialises the cache into w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	data, err := b.encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// encode lays out the fixed header, then the string data and every table, each starting on
// an 8-byte boundary.
func (b *Builder) encode() ([]byte, error) {
	if uint64(len(b.stringData)) > math.MaxUint32 {
		return nil, ErrTooLarge
	}
	for _, n := range []int{len(b.strings), len(b.files), len(b.functions), len(b.locs), len(b.ranges)} {
		if uint64(n) >= math.MaxUint32 {
			return nil, ErrTooLarge
		}
	}

	ranges := b.ranges
	if !b.PreserveRangeOrder {
		ranges = append([]symcache.RangeEntry(nil), b.ranges...)
		sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	}

	out := make([]byte, symcache.HeaderSize)
	hdr := symcache.Header{
		Version:       symcache.Version,
		EndianMarker:  symcache.EndianMarker,
		NameStringIdx: b.nameIdx,
	}
	copy(hdr.Magic[:], symcache.Magic)

	out, hdr.StringData = appendSection(out, uint32(len(b.stringData)), b.stringData)
	out, hdr.Strings = appendRecords(out, b.strings, symcache.StringRefSize)
	out, hdr.Files = appendRecords(out, b.files, symcache.FileRecordSize)
	out, hdr.Functions = appendRecords(out, b.functions, symcache.FunctionRecordSize)
	out, hdr.SourceLocs = appendRecords(out, b.locs, symcache.SourceLocationSize)
	out, hdr.Ranges = appendRecords(out, ranges, symcache.RangeEntrySize)

	hdr.Length = uint64(len(out))
	if !symcache.EncodeHeader(out, hdr) {
		return nil, errors.New("builder: encode header failed")
	}
	return out, nil
}

type encoder interface {
	Encode(dst []byte)
}

func appendRecords[T encoder](out []byte, recs []T, size int) ([]byte, symcache.Section) {
	raw := make([]byte, len(recs)*size)
	for i, r := range recs {
		r.Encode(raw[i*size:])
	}
	return appendSection(out, uint32(len(recs)), raw)
}

func appendSection(out []byte, count uint32, payload []byte) ([]byte, symcache.Section) {
	out = alignTo(out, sectionAlign)
	sec := symcache.Section{Offset: uint64(len(out)), Count: count}
	return append(out, payload...), sec
}

func alignTo(out []byte, n int) []byte {
	if mod := len(out) % n; mod != 0 {
		out = append(out, make([]byte, n-mod)...)
	}
	return out
}
