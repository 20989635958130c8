package symcache

import "fmt"

// accessor gives bounds-checked access to a validated cache buffer.
type accessor []byte

// bytes returns data[offset:offset+length]. Overflow of offset+length is an error, never a
// wrap-around.
func (a accessor) bytes(offset, length uint64) ([]byte, error) {
	end := offset + length
	if end < offset || end > uint64(len(a)) {
		return nil, fmt.Errorf("%w: [%d, +%d) of %d bytes", ErrOutOfBounds, offset, length, len(a))
	}
	return a[offset:end], nil
}

// records returns the raw bytes of count fixed-size records starting at offset. The offset
// must be a multiple of align; the buffer start itself is aligned at load time.
func (a accessor) records(offset uint64, count uint32, size, align uint64) ([]byte, error) {
	if align > 1 && offset%align != 0 {
		return nil, fmt.Errorf("%w: offset %d, want multiple of %d", ErrUnaligned, offset, align)
	}
	// count < 2^32 and size is a small constant, so the product cannot overflow.
	return a.bytes(offset, uint64(count)*size)
}
