package symcache

import (
	"fmt"
	"runtime"
)

// StringRef locates one string payload inside the string data region.
type StringRef struct {
	Offset uint32
	Len    uint32
}

// FileRecord names a source file. Directory and CompDir may be NoIndex.
type FileRecord struct {
	NameIdx      uint32
	DirectoryIdx uint32
	CompDirIdx   uint32
}

// FunctionRecord names a function. EntryAddr is NoAddress when unknown.
type FunctionRecord struct {
	EntryAddr uint64
	NameIdx   uint32
	Language  Language
}

// SourceLocationRecord is one (file, function, line) frame. ParentIdx is the source
// location this one is inlined into, or NoIndex for an outermost frame.
type SourceLocationRecord struct {
	FileIdx     uint32
	FunctionIdx uint32
	Line        uint32
	ParentIdx   uint32
}

// RangeEntry maps every address from Start up to the next entry's Start to a source
// location.
type RangeEntry struct {
	Start     uint64
	SourceLoc uint32
}

// The Encode methods write one record in the host byte order; dst must be at least the
// record size. They exist for writers and tests, the reader only decodes.

func (r StringRef) Encode(dst []byte) {
	byteOrder.PutUint32(dst[0:], r.Offset)
	byteOrder.PutUint32(dst[4:], r.Len)
}

func (r FileRecord) Encode(dst []byte) {
	byteOrder.PutUint32(dst[0:], r.NameIdx)
	byteOrder.PutUint32(dst[4:], r.DirectoryIdx)
	byteOrder.PutUint32(dst[8:], r.CompDirIdx)
}

func (r FunctionRecord) Encode(dst []byte) {
	byteOrder.PutUint64(dst[0:], r.EntryAddr)
	byteOrder.PutUint32(dst[8:], r.NameIdx)
	byteOrder.PutUint32(dst[12:], uint32(r.Language))
}

func (r SourceLocationRecord) Encode(dst []byte) {
	byteOrder.PutUint32(dst[0:], r.FileIdx)
	byteOrder.PutUint32(dst[4:], r.FunctionIdx)
	byteOrder.PutUint32(dst[8:], r.Line)
	byteOrder.PutUint32(dst[12:], r.ParentIdx)
}

func (r RangeEntry) Encode(dst []byte) {
	byteOrder.PutUint64(dst[0:], r.Start)
	byteOrder.PutUint32(dst[8:], r.SourceLoc)
	byteOrder.PutUint32(dst[12:], 0)
}

// Record sizes and alignments for writers.
const (
	StringRefSize      = stringRefSize
	FileRecordSize     = fileRecordSize
	FunctionRecordSize = functionRecordSize
	SourceLocationSize = sourceLocationSize
	RangeEntrySize     = rangeEntrySize
)

// table describes how to reach one record table.
type table struct {
	name    string
	sec     *Section
	size    uint64
	align   uint64
	errKind error
}

func (c *Cache) stringTable() table {
	return table{"strings", &c.hdr.Strings, stringRefSize, stringRefAlign, ErrInvalidStringReference}
}

func (c *Cache) fileTable() table {
	return table{"files", &c.hdr.Files, fileRecordSize, fileRecordAlign, ErrInvalidFileReference}
}

func (c *Cache) functionTable() table {
	return table{"functions", &c.hdr.Functions, functionRecordSize, functionAlign, ErrInvalidFunctionReference}
}

func (c *Cache) sourceLocTable() table {
	return table{"source locations", &c.hdr.SourceLocs, sourceLocationSize, sourceLocAlign, ErrInvalidSourceLocationReference}
}

func (c *Cache) rangeTable() table {
	return table{"address ranges", &c.hdr.Ranges, rangeEntrySize, rangeEntryAlign, ErrInvalidRangeReference}
}

// record returns the bytes of record idx of t. The index is checked against the header
// count first, then the whole table region against the buffer.
func (c *Cache) record(t table, idx uint32) ([]byte, error) {
	if idx >= t.sec.Count {
		return nil, refError(t.errKind, idx, nil)
	}
	raw, err := c.data.records(t.sec.Offset, t.sec.Count, t.size, t.align)
	if err != nil {
		return nil, fmt.Errorf("%s table: %w", t.name, err)
	}
	off := uint64(idx) * t.size
	return raw[off : off+t.size], nil
}

func (c *Cache) stringRef(idx uint32) (StringRef, error) {
	defer runtime.KeepAlive(c)
	b, err := c.record(c.stringTable(), idx)
	if err != nil {
		return StringRef{}, err
	}
	return StringRef{
		Offset: byteOrder.Uint32(b[0:]),
		Len:    byteOrder.Uint32(b[4:]),
	}, nil
}

func (c *Cache) fileRecord(idx uint32) (FileRecord, error) {
	defer runtime.KeepAlive(c)
	b, err := c.record(c.fileTable(), idx)
	if err != nil {
		return FileRecord{}, err
	}
	return FileRecord{
		NameIdx:      byteOrder.Uint32(b[0:]),
		DirectoryIdx: byteOrder.Uint32(b[4:]),
		CompDirIdx:   byteOrder.Uint32(b[8:]),
	}, nil
}

func (c *Cache) functionRecord(idx uint32) (FunctionRecord, error) {
	defer runtime.KeepAlive(c)
	b, err := c.record(c.functionTable(), idx)
	if err != nil {
		return FunctionRecord{}, err
	}
	return FunctionRecord{
		EntryAddr: byteOrder.Uint64(b[0:]),
		NameIdx:   byteOrder.Uint32(b[8:]),
		Language:  Language(byteOrder.Uint32(b[12:])),
	}, nil
}

func (c *Cache) sourceLocationRecord(idx uint32) (SourceLocationRecord, error) {
	defer runtime.KeepAlive(c)
	b, err := c.record(c.sourceLocTable(), idx)
	if err != nil {
		return SourceLocationRecord{}, err
	}
	return SourceLocationRecord{
		FileIdx:     byteOrder.Uint32(b[0:]),
		FunctionIdx: byteOrder.Uint32(b[4:]),
		Line:        byteOrder.Uint32(b[8:]),
		ParentIdx:   byteOrder.Uint32(b[12:]),
	}, nil
}

func (c *Cache) rangeEntry(idx uint32) (RangeEntry, error) {
	defer runtime.KeepAlive(c)
	b, err := c.record(c.rangeTable(), idx)
	if err != nil {
		return RangeEntry{}, err
	}
	return RangeEntry{
		Start:     byteOrder.Uint64(b[0:]),
		SourceLoc: byteOrder.Uint32(b[8:]),
	}, nil
}
