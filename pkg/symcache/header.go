package symcache

import (
	"encoding/binary"
	"unsafe"
)

// byteOrder is the order every multi-byte field is decoded with. Files produced on a machine
// with the other order are rejected through the endianness marker, never converted.
var byteOrder = binary.NativeEndian

// Section locates one table: Offset is relative to the start of the buffer, Count is the
// number of records (the number of bytes for the string data region).
type Section struct {
	Offset uint64
	Count  uint32
}

// Header is the decoded fixed-size header.
type Header struct {
	Magic         [4]byte
	Version       uint32
	EndianMarker  uint32
	Length        uint64
	Strings       Section
	StringData    Section
	Files         Section
	Functions     Section
	SourceLocs    Section
	Ranges        Section
	NameStringIdx uint32
}

const (
	offMagic      = 0
	offVersion    = 4
	offEndian     = 8
	offLength     = 16
	offSections   = 24
	sectionSize   = 16
	offNameString = 120
)

// EncodeHeader writes h into dst in the host byte order. It returns false if dst is
// shorter than HeaderSize.
func EncodeHeader(dst []byte, h Header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	clear(dst[:HeaderSize])
	copy(dst[offMagic:offMagic+4], h.Magic[:])
	byteOrder.PutUint32(dst[offVersion:], h.Version)
	byteOrder.PutUint32(dst[offEndian:], h.EndianMarker)
	byteOrder.PutUint64(dst[offLength:], h.Length)
	for i, s := range h.sections() {
		off := offSections + i*sectionSize
		byteOrder.PutUint64(dst[off:], s.Offset)
		byteOrder.PutUint32(dst[off+8:], s.Count)
	}
	byteOrder.PutUint32(dst[offNameString:], h.NameStringIdx)
	return true
}

func decodeHeader(src []byte) (Header, bool) {
	var h Header
	if len(src) < HeaderSize {
		return h, false
	}
	copy(h.Magic[:], src[offMagic:offMagic+4])
	h.Version = byteOrder.Uint32(src[offVersion:])
	h.EndianMarker = byteOrder.Uint32(src[offEndian:])
	h.Length = byteOrder.Uint64(src[offLength:])
	for i, s := range h.sectionPtrs() {
		off := offSections + i*sectionSize
		s.Offset = byteOrder.Uint64(src[off:])
		s.Count = byteOrder.Uint32(src[off+8:])
	}
	h.NameStringIdx = byteOrder.Uint32(src[offNameString:])
	return h, true
}

func (h *Header) sections() [6]Section {
	return [6]Section{h.Strings, h.StringData, h.Files, h.Functions, h.SourceLocs, h.Ranges}
}

func (h *Header) sectionPtrs() [6]*Section {
	return [6]*Section{&h.Strings, &h.StringData, &h.Files, &h.Functions, &h.SourceLocs, &h.Ranges}
}

// validateHeader runs the load-time checks in their fixed order. Table offsets and counts
// are not checked here: each table validates its own region on first use.
func validateHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	if uintptr(unsafe.Pointer(unsafe.SliceData(data)))%BufferAlign != 0 {
		return Header{}, ErrBufferNotAligned
	}
	if string(data[offMagic:offMagic+4]) != Magic {
		return Header{}, ErrWrongFormat
	}
	if byteOrder.Uint32(data[offEndian:]) != EndianMarker {
		return Header{}, ErrWrongEndianness
	}
	hdr, ok := decodeHeader(data)
	if !ok {
		return Header{}, ErrHeaderTooSmall
	}
	if hdr.Version != Version {
		return Header{}, ErrWrongVersion
	}
	if hdr.Length != uint64(len(data)) {
		return Header{}, ErrBadFormatLength
	}
	return hdr, nil
}
