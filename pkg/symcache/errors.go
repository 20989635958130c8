package symcache

import (
	"errors"
	"fmt"
)

// Load-time errors. A cache that fails any of these is never returned.
var (
	ErrBufferNotAligned = errors.New("symcache: source buffer is not correctly aligned")
	ErrHeaderTooSmall   = errors.New("symcache: header is too small")
	ErrWrongEndianness  = errors.New("symcache: endianness mismatch")
	ErrWrongFormat      = errors.New("symcache: wrong format magic")
	ErrWrongVersion     = errors.New("symcache: unknown symcache version")
	ErrBadFormatLength  = errors.New("symcache: incorrect buffer length")
)

// Access errors of the byte accessor.
var (
	ErrOutOfBounds = errors.New("symcache: range out of bounds")
	ErrUnaligned   = errors.New("symcache: record offset is not aligned")
)

// Reference error kinds, carried by *ReferenceError.
var (
	ErrInvalidFileReference           = errors.New("file index out of bounds")
	ErrInvalidFunctionReference       = errors.New("function index out of bounds")
	ErrInvalidSourceLocationReference = errors.New("source location index out of bounds")
	ErrInvalidRangeReference          = errors.New("address range index out of bounds")
	ErrInvalidStringReference         = errors.New("string index out of bounds")
	ErrInvalidStringDataReference     = errors.New("string data out of bounds")
	ErrInvalidStringData              = errors.New("string data contains invalid UTF-8")

	// Structural corruption found while resolving an address.
	ErrCyclicSourceLocation = errors.New("source location parent chain does not terminate")
	ErrNonMonotonicRanges   = errors.New("address ranges are not strictly ascending")
)

// ReferenceError reports a bad reference into one of the cache tables.
// Kind is one of the ErrInvalid* / corruption kinds above and is matched by errors.Is.
type ReferenceError struct {
	Kind  error
	Index uint32
	Cause error
}

func (e *ReferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("symcache: %v (index %d): %v", e.Kind, e.Index, e.Cause)
	}
	return fmt.Sprintf("symcache: %v (index %d)", e.Kind, e.Index)
}

func (e *ReferenceError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func refError(kind error, idx uint32, cause error) error {
	return &ReferenceError{Kind: kind, Index: idx, Cause: cause}
}

// UTF8Error describes where a string payload stops being valid UTF-8.
type UTF8Error struct {
	ValidUpTo int
}

func (e *UTF8Error) Error() string {
	return fmt.Sprintf("invalid utf-8 sequence at byte %d", e.ValidUpTo)
}
