package symcache

import (
	"iter"
	"path"
	"strings"
)

// Function is a handle on one function record. Two handles are equal (==) iff they refer to
// the same record of the same cache.
type Function struct {
	cache *Cache
	idx   uint32
}

// Function returns the function at idx.
func (c *Cache) Function(idx uint32) (Function, error) {
	if _, err := c.functionRecord(idx); err != nil {
		return Function{}, err
	}
	return Function{cache: c, idx: idx}, nil
}

// Index is the position of the function in the functions table.
func (f Function) Index() uint32 { return f.idx }

// Name resolves the function name.
func (f Function) Name() (string, error) {
	rec, err := f.cache.functionRecord(f.idx)
	if err != nil {
		return "", err
	}
	return f.cache.optionalString(rec.NameIdx)
}

// EntryAddress returns the function's entry address, if the converter recorded one.
func (f Function) EntryAddress() (uint64, bool, error) {
	rec, err := f.cache.functionRecord(f.idx)
	if err != nil {
		return 0, false, err
	}
	return rec.EntryAddr, rec.EntryAddr != NoAddress, nil
}

func (f Function) Language() (Language, error) {
	rec, err := f.cache.functionRecord(f.idx)
	if err != nil {
		return LanguageUnknown, err
	}
	return rec.Language, nil
}

// File is a handle on one file record.
type File struct {
	cache *Cache
	idx   uint32
}

// File returns the file at idx.
func (c *Cache) File(idx uint32) (File, error) {
	if _, err := c.fileRecord(idx); err != nil {
		return File{}, err
	}
	return File{cache: c, idx: idx}, nil
}

func (f File) Index() uint32 { return f.idx }

// Name resolves the file name as recorded, usually a path relative to Directory.
func (f File) Name() (string, error) {
	rec, err := f.cache.fileRecord(f.idx)
	if err != nil {
		return "", err
	}
	return f.cache.optionalString(rec.NameIdx)
}

func (f File) Directory() (string, error) {
	rec, err := f.cache.fileRecord(f.idx)
	if err != nil {
		return "", err
	}
	return f.cache.optionalString(rec.DirectoryIdx)
}

// CompDir is the compilation directory of the unit the file belongs to.
func (f File) CompDir() (string, error) {
	rec, err := f.cache.fileRecord(f.idx)
	if err != nil {
		return "", err
	}
	return f.cache.optionalString(rec.CompDirIdx)
}

// FullPath joins comp dir, directory and name. An absolute component discards everything
// before it.
func (f File) FullPath() (string, error) {
	compDir, err := f.CompDir()
	if err != nil {
		return "", err
	}
	dir, err := f.Directory()
	if err != nil {
		return "", err
	}
	name, err := f.Name()
	if err != nil {
		return "", err
	}
	return joinPath(compDir, dir, name), nil
}

func joinPath(parts ...string) string {
	var out string
	for _, p := range parts {
		switch {
		case p == "":
		case isAbs(p) || out == "":
			out = p
		default:
			out = path.Join(out, p)
		}
	}
	return out
}

// isAbs accepts both unix and windows style absolute paths, since caches are produced on
// any platform.
func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// SourceLocation is a handle on one (file, function, line) frame.
type SourceLocation struct {
	cache *Cache
	idx   uint32
}

// SourceLocation returns the source location at idx.
func (c *Cache) SourceLocation(idx uint32) (SourceLocation, error) {
	if _, err := c.sourceLocationRecord(idx); err != nil {
		return SourceLocation{}, err
	}
	return SourceLocation{cache: c, idx: idx}, nil
}

func (s SourceLocation) Index() uint32 { return s.idx }

func (s SourceLocation) Line() (uint32, error) {
	rec, err := s.cache.sourceLocationRecord(s.idx)
	if err != nil {
		return 0, err
	}
	return rec.Line, nil
}

// File returns the file of this frame; ok is false when the frame has none.
func (s SourceLocation) File() (f File, ok bool, err error) {
	rec, err := s.cache.sourceLocationRecord(s.idx)
	if err != nil || rec.FileIdx == NoIndex {
		return File{}, false, err
	}
	f, err = s.cache.File(rec.FileIdx)
	return f, err == nil, err
}

// Function returns the function of this frame; ok is false when the frame has none.
func (s SourceLocation) Function() (fn Function, ok bool, err error) {
	rec, err := s.cache.sourceLocationRecord(s.idx)
	if err != nil || rec.FunctionIdx == NoIndex {
		return Function{}, false, err
	}
	fn, err = s.cache.Function(rec.FunctionIdx)
	return fn, err == nil, err
}

// Parent returns the source location this frame is inlined into; ok is false for an
// outermost frame.
func (s SourceLocation) Parent() (p SourceLocation, ok bool, err error) {
	rec, err := s.cache.sourceLocationRecord(s.idx)
	if err != nil || rec.ParentIdx == NoIndex {
		return SourceLocation{}, false, err
	}
	p, err = s.cache.SourceLocation(rec.ParentIdx)
	return p, err == nil, err
}

// Functions iterates the functions table in index order. Every range over the returned
// sequence starts again at index 0. Iteration stops after the first error.
func (c *Cache) Functions() iter.Seq2[Function, error] {
	return func(yield func(Function, error) bool) {
		for i := uint32(0); i < c.hdr.Functions.Count; i++ {
			fn, err := c.Function(i)
			if !yield(fn, err) || err != nil {
				return
			}
		}
	}
}

// Files iterates the files table in index order, like Functions.
func (c *Cache) Files() iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		for i := uint32(0); i < c.hdr.Files.Count; i++ {
			f, err := c.File(i)
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}
