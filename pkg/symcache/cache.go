package symcache

import (
	"io"
	"runtime"
	"sync"
)

// Cache is a read-only view over one SymCache buffer. All methods are safe for concurrent
// use. A Cache must not be used after Close.
type Cache struct {
	src  Source
	data accessor
	hdr  Header

	cleanup   runtime.Cleanup
	closeOnce sync.Once
	closeErr  error
}

// Open maps the file at path read-only and validates its header.
// If mmap is unavailable, it falls back to reading the file into memory.
// The mapping is released by Close, or once the Cache is no longer reachable.
func Open(path string) (*Cache, error) {
	src, err := Mmap(path)
	if err == nil {
		return OpenSource(src)
	}

	// Fallback path that does not require mmap support.
	owned, rerr := ReadAll(path)
	if rerr != nil {
		return nil, rerr
	}
	return OpenSource(owned)
}

// OpenBytes validates buf and returns a cache borrowing it. The caller keeps ownership and
// must not modify buf while the cache is in use.
func OpenBytes(buf []byte) (*Cache, error) {
	return OpenSource(BorrowedSource(buf))
}

// OpenOwned validates buf and returns a cache that owns it.
func OpenOwned(buf []byte) (*Cache, error) {
	return OpenSource(NewOwnedSource(buf))
}

// OpenReaderAt loads size bytes from r into an owned buffer and validates them.
func OpenReaderAt(r io.ReaderAt, size int64) (*Cache, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, errFileTooLarge
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return OpenOwned(data)
}

// OpenSource validates the header of src and returns the cache. On failure src is closed
// and no cache is returned.
func OpenSource(src Source) (*Cache, error) {
	data := src.Bytes()
	hdr, err := validateHeader(data)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	c := &Cache{
		src:  src,
		data: accessor(data),
		hdr:  hdr,
	}
	c.cleanup = runtime.AddCleanup(c, func(s Source) { _ = s.Close() }, src)
	return c, nil
}

// Close releases the backing source. Only the first call has an effect.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		c.closeErr = c.src.Close()
		c.data = nil
	})
	return c.closeErr
}

// Header returns a copy of the decoded header.
func (c *Cache) Header() Header {
	return c.hdr
}

// Name returns the label the converter gave this cache, or "" when it has none.
func (c *Cache) Name() (string, error) {
	if c.hdr.NameStringIdx == NoIndex {
		return "", nil
	}
	return c.String(c.hdr.NameStringIdx)
}

// Stats holds the record count of every table.
type Stats struct {
	Strings         uint32 `json:"strings"`
	StringDataBytes uint32 `json:"string_data_bytes"`
	Files           uint32 `json:"files"`
	Functions       uint32 `json:"functions"`
	SourceLocations uint32 `json:"source_locations"`
	Ranges          uint32 `json:"ranges"`
}

// Stats reports the table sizes declared by the header.
func (c *Cache) Stats() Stats {
	return Stats{
		Strings:         c.hdr.Strings.Count,
		StringDataBytes: c.hdr.StringData.Count,
		Files:           c.hdr.Files.Count,
		Functions:       c.hdr.Functions.Count,
		SourceLocations: c.hdr.SourceLocs.Count,
		Ranges:          c.hdr.Ranges.Count,
	}
}

// HasFileInfo reports whether the cache carries any file records.
func (c *Cache) HasFileInfo() bool {
	return c.hdr.Files.Count > 0
}

// HasLineInfo reports whether the cache carries file records and at least one source
// location with a non-zero line.
func (c *Cache) HasLineInfo() (bool, error) {
	defer runtime.KeepAlive(c)
	if !c.HasFileInfo() {
		return false, nil
	}
	for i := uint32(0); i < c.hdr.SourceLocs.Count; i++ {
		rec, err := c.sourceLocationRecord(i)
		if err != nil {
			return false, err
		}
		if rec.Line > 0 {
			return true, nil
		}
	}
	return false, nil
}
