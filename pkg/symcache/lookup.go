package symcache

import (
	"fmt"
	"runtime"
	"sort"
)

// Chain is the inlining chain of an address, innermost frame first: the function the
// instruction belongs to, then every caller it was inlined into, up to the outermost real
// function.
type Chain []SourceLocation

// Lookup resolves addr to its inlining chain.
//
// The range covering addr is the entry with the greatest start address <= addr; ranges have
// no explicit end, so the last entry extends to the end of the address space. ok is false
// and err nil when addr lies below the first entry or the cache has no ranges.
//
// The entries adjacent to the match are required to be strictly ascending; a violation is
// reported as ErrNonMonotonicRanges rather than guessing which entry applies. Use Verify to
// check the whole table. A parent chain longer than the source location table is reported
// as ErrCyclicSourceLocation.
func (c *Cache) Lookup(addr uint64) (chain Chain, ok bool, err error) {
	defer runtime.KeepAlive(c)
	n := c.hdr.Ranges.Count
	if n == 0 {
		return nil, false, nil
	}
	raw, err := c.data.records(c.hdr.Ranges.Offset, n, rangeEntrySize, rangeEntryAlign)
	if err != nil {
		return nil, false, fmt.Errorf("address ranges table: %w", err)
	}
	start := func(i int) uint64 {
		return byteOrder.Uint64(raw[i*rangeEntrySize:])
	}

	i := sort.Search(int(n), func(i int) bool {
		return start(i) > addr
	})
	if i == 0 {
		return nil, false, nil
	}
	i--

	if i > 0 && start(i-1) >= start(i) {
		return nil, false, refError(ErrNonMonotonicRanges, uint32(i), nil)
	}
	if i+1 < int(n) && start(i+1) <= start(i) {
		return nil, false, refError(ErrNonMonotonicRanges, uint32(i+1), nil)
	}

	sl := byteOrder.Uint32(raw[i*rangeEntrySize+8:])
	chain, err = c.inlineChain(sl)
	if err != nil {
		return nil, false, err
	}
	return chain, true, nil
}

// inlineChain follows parent links from idx. The walk is bounded by the size of the source
// location table, so a cycle is reported instead of looping.
func (c *Cache) inlineChain(idx uint32) (Chain, error) {
	limit := c.hdr.SourceLocs.Count
	var chain Chain
	for cur := idx; ; {
		rec, err := c.sourceLocationRecord(cur)
		if err != nil {
			return nil, err
		}
		if uint32(len(chain)) >= limit {
			return nil, refError(ErrCyclicSourceLocation, idx, nil)
		}
		if rec.FileIdx != NoIndex && rec.FileIdx >= c.hdr.Files.Count {
			return nil, refError(ErrInvalidFileReference, rec.FileIdx, nil)
		}
		if rec.FunctionIdx != NoIndex && rec.FunctionIdx >= c.hdr.Functions.Count {
			return nil, refError(ErrInvalidFunctionReference, rec.FunctionIdx, nil)
		}
		chain = append(chain, SourceLocation{cache: c, idx: cur})
		if rec.ParentIdx == NoIndex {
			return chain, nil
		}
		cur = rec.ParentIdx
	}
}
