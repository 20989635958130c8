// Package symstore serves symbolication over SymCache files on disk.
package symstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/symcache/pkg/symcache"
)

// Ext is the file extension of cache files managed by a Registry.
const Ext = ".symc"

var (
	ErrCacheNotFound = errors.New("symstore: cache not found")
	ErrInvalidName   = errors.New("symstore: invalid cache name")
)

// File is an opened cache together with where it came from.
type File struct {
	cache *symcache.Cache
	path  string
	name  string
	size  int64
}

// Frame is one resolved frame of an inline chain with every string materialised.
type Frame struct {
	Function     string  `json:"function,omitempty"`
	EntryAddress *uint64 `json:"entry_address,omitempty"`
	Language     string  `json:"language,omitempty"`
	File         string  `json:"file,omitempty"`
	Line         uint32  `json:"line"`
	Inlined      bool    `json:"inlined"`
}

// Info summarises a cache file.
type Info struct {
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	Size        int64          `json:"size"`
	DebugName   string         `json:"debug_name,omitempty"`
	Stats       symcache.Stats `json:"stats"`
	HasFileInfo bool           `json:"has_file_info"`
	HasLineInfo bool           `json:"has_line_info"`
}

type FunctionInfo struct {
	Index        uint32  `json:"index"`
	Name         string  `json:"name"`
	EntryAddress *uint64 `json:"entry_address,omitempty"`
	Language     string  `json:"language,omitempty"`
}

type FileInfo struct {
	Index   uint32 `json:"index"`
	Path    string `json:"path"`
	Name    string `json:"name"`
	Dir     string `json:"directory,omitempty"`
	CompDir string `json:"comp_dir,omitempty"`
}

// Open opens the cache at path. The name defaults to the base name without Ext.
func Open(path string) (*File, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	c, err := symcache.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{
		cache: c,
		path:  path,
		name:  strings.TrimSuffix(filepath.Base(path), Ext),
		size:  st.Size(),
	}, nil
}

func (f *File) Close() error {
	if f == nil || f.cache == nil {
		return nil
	}
	return f.cache.Close()
}

func (f *File) Name() string { return f.name }

func (f *File) Path() string { return f.path }

// Cache returns the underlying cache. It is closed together with f.
func (f *File) Cache() *symcache.Cache { return f.cache }

func (f *File) Info() (Info, error) {
	debugName, err := f.cache.Name()
	if err != nil {
		return Info{}, err
	}
	hasLines, err := f.cache.HasLineInfo()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:        f.name,
		Path:        f.path,
		Size:        f.size,
		DebugName:   debugName,
		Stats:       f.cache.Stats(),
		HasFileInfo: f.cache.HasFileInfo(),
		HasLineInfo: hasLines,
	}, nil
}

// Symbolicate resolves addr. It returns no frames and no error for an unmapped address.
func (f *File) Symbolicate(addr uint64) ([]Frame, error) {
	chain, ok, err := f.cache.Lookup(addr)
	if err != nil || !ok {
		return nil, err
	}
	return ResolveChain(chain)
}

// ResolveChain materialises every frame of chain, innermost first. All but the last frame
// are marked as inlined.
func ResolveChain(chain symcache.Chain) ([]Frame, error) {
	frames := make([]Frame, 0, len(chain))
	for i, sl := range chain {
		line, err := sl.Line()
		if err != nil {
			return nil, err
		}
		fr := Frame{Line: line, Inlined: i < len(chain)-1}

		fn, ok, err := sl.Function()
		if err != nil {
			return nil, err
		}
		if ok {
			fi, err := describeFunction(fn)
			if err != nil {
				return nil, err
			}
			fr.Function, fr.EntryAddress, fr.Language = fi.Name, fi.EntryAddress, fi.Language
		}

		file, ok, err := sl.File()
		if err != nil {
			return nil, err
		}
		if ok {
			if fr.File, err = file.FullPath(); err != nil {
				return nil, err
			}
		}
		frames = append(frames, fr)
	}
	return frames, nil
}

// Functions lists up to limit functions starting at index offset. A limit <= 0 means all.
func (f *File) Functions(offset, limit int) ([]FunctionInfo, error) {
	lo, hi := pageBounds(offset, limit, f.cache.Stats().Functions)
	out := make([]FunctionInfo, 0, hi-lo)
	for i := lo; i < hi; i++ {
		fn, err := f.cache.Function(uint32(i))
		if err != nil {
			return nil, err
		}
		fi, err := describeFunction(fn)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, nil
}

// Files lists up to limit files starting at index offset. A limit <= 0 means all.
func (f *File) Files(offset, limit int) ([]FileInfo, error) {
	lo, hi := pageBounds(offset, limit, f.cache.Stats().Files)
	out := make([]FileInfo, 0, hi-lo)
	for i := lo; i < hi; i++ {
		file, err := f.cache.File(uint32(i))
		if err != nil {
			return nil, err
		}
		fi := FileInfo{Index: file.Index()}
		if fi.Name, err = file.Name(); err != nil {
			return nil, err
		}
		if fi.Dir, err = file.Directory(); err != nil {
			return nil, err
		}
		if fi.CompDir, err = file.CompDir(); err != nil {
			return nil, err
		}
		if fi.Path, err = file.FullPath(); err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, nil
}

// pageBounds clamps offset and limit to a table of count records.
func pageBounds(offset, limit int, count uint32) (lo, hi int) {
	n := int(count)
	lo = min(max(offset, 0), n)
	hi = n
	if limit > 0 && limit < n-lo {
		hi = lo + limit
	}
	return lo, hi
}

func describeFunction(fn symcache.Function) (FunctionInfo, error) {
	fi := FunctionInfo{Index: fn.Index()}
	var err error
	if fi.Name, err = fn.Name(); err != nil {
		return FunctionInfo{}, err
	}
	entry, ok, err := fn.EntryAddress()
	if err != nil {
		return FunctionInfo{}, err
	}
	if ok {
		fi.EntryAddress = &entry
	}
	lang, err := fn.Language()
	if err != nil {
		return FunctionInfo{}, err
	}
	if lang != symcache.LanguageUnknown {
		fi.Language = lang.String()
	}
	return fi, nil
}
