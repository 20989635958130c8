package symcache

import (
	"fmt"
	"runtime"
)

// Verify eagerly checks the whole cache: every table region, every string, every index and
// parent chain, and strict ordering of the address ranges. It returns the first problem
// found. Lookups do not need Verify; it exists for tooling that wants to reject a damaged
// file up front.
func (c *Cache) Verify() error {
	defer runtime.KeepAlive(c)
	h := &c.hdr
	if _, err := c.data.bytes(h.StringData.Offset, uint64(h.StringData.Count)); err != nil {
		return fmt.Errorf("string data region: %w", err)
	}
	for _, t := range []table{c.stringTable(), c.fileTable(), c.functionTable(), c.sourceLocTable(), c.rangeTable()} {
		if _, err := c.data.records(t.sec.Offset, t.sec.Count, t.size, t.align); err != nil {
			return fmt.Errorf("%s table: %w", t.name, err)
		}
	}

	for i := uint32(0); i < h.Strings.Count; i++ {
		if _, err := c.StringBytes(i); err != nil {
			return err
		}
	}
	if err := c.checkStringIndex(h.NameStringIdx); err != nil {
		return err
	}
	for i := uint32(0); i < h.Files.Count; i++ {
		rec, err := c.fileRecord(i)
		if err != nil {
			return err
		}
		for _, s := range []uint32{rec.NameIdx, rec.DirectoryIdx, rec.CompDirIdx} {
			if err := c.checkStringIndex(s); err != nil {
				return err
			}
		}
	}
	for i := uint32(0); i < h.Functions.Count; i++ {
		rec, err := c.functionRecord(i)
		if err != nil {
			return err
		}
		if err := c.checkStringIndex(rec.NameIdx); err != nil {
			return err
		}
	}
	for i := uint32(0); i < h.SourceLocs.Count; i++ {
		if _, err := c.inlineChain(i); err != nil {
			return err
		}
	}

	var prev uint64
	for i := uint32(0); i < h.Ranges.Count; i++ {
		e, err := c.rangeEntry(i)
		if err != nil {
			return err
		}
		if i > 0 && e.Start <= prev {
			return refError(ErrNonMonotonicRanges, i, nil)
		}
		if e.SourceLoc >= h.SourceLocs.Count {
			return refError(ErrInvalidSourceLocationReference, e.SourceLoc, nil)
		}
		prev = e.Start
	}
	return nil
}

func (c *Cache) checkStringIndex(idx uint32) error {
	if idx != NoIndex && idx >= c.hdr.Strings.Count {
		return refError(ErrInvalidStringReference, idx, nil)
	}
	return nil
}
