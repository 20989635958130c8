package symcache

import (
	"runtime"
	"unicode/utf8"
)

// StringBytes resolves a string table index to its UTF-8 payload without copying. The
// returned slice aliases the cache buffer: it is only valid until the cache is closed or
// becomes unreachable, and must not be modified.
//
// UTF-8 is validated on every call; callers resolving the same index on a hot path should
// keep the result.
func (c *Cache) StringBytes(idx uint32) ([]byte, error) {
	// The mapping must outlive the UTF-8 scan below.
	defer runtime.KeepAlive(c)
	ref, err := c.stringRef(idx)
	if err != nil {
		return nil, err
	}
	region, err := c.data.bytes(c.hdr.StringData.Offset, uint64(c.hdr.StringData.Count))
	if err != nil {
		return nil, refError(ErrInvalidStringDataReference, idx, err)
	}
	end := uint64(ref.Offset) + uint64(ref.Len)
	if end > uint64(len(region)) {
		return nil, refError(ErrInvalidStringDataReference, idx, nil)
	}
	b := region[ref.Offset:end]
	if n := validUTF8Prefix(b); n != len(b) {
		return nil, refError(ErrInvalidStringData, idx, &UTF8Error{ValidUpTo: n})
	}
	return b, nil
}

// String resolves a string table index and returns a copy that stays valid after the cache
// is closed.
func (c *Cache) String(idx uint32) (string, error) {
	defer runtime.KeepAlive(c)
	b, err := c.StringBytes(idx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// optionalString resolves idx, mapping NoIndex to "".
func (c *Cache) optionalString(idx uint32) (string, error) {
	if idx == NoIndex {
		return "", nil
	}
	return c.String(idx)
}

// validUTF8Prefix returns the length of the longest valid UTF-8 prefix of b.
func validUTF8Prefix(b []byte) int {
	if utf8.Valid(b) {
		return len(b)
	}
	n := 0
	for n < len(b) {
		r, size := utf8.DecodeRune(b[n:])
		if r == utf8.RuneError && size <= 1 {
			return n
		}
		n += size
	}
	return n
}
