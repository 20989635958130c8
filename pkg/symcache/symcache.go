// Package symcache implements the SymCache format.
//
// A SymCache is a single-file, memory-mappable table set that resolves an instruction
// address to a chain of source locations (function, file, line), innermost inlined frame
// first. The reader never builds or mutates a cache: the header is validated once when the
// cache is opened and every later access validates exactly the bytes it touches.
package symcache

import "math"

// Format constants must never change for a given Version.
const (
	// Magic is the file magic for all SymCache files.
	Magic = "SYMC"

	// Version is the only format version this reader understands.
	Version uint32 = 1

	// EndianMarker is written in the producer's byte order. A reader on a machine with the
	// opposite byte order sees it swapped.
	EndianMarker uint32 = 0x1A2B3C4D

	// HeaderSize is the size of the fixed header in bytes.
	HeaderSize = 128

	// BufferAlign is the required alignment of the first byte of a cache buffer.
	BufferAlign = 8

	// NoIndex marks an absent table index (no parent, no file, no name...).
	NoIndex uint32 = math.MaxUint32

	// NoAddress marks a function without entry address metadata.
	NoAddress uint64 = math.MaxUint64
)

// Record sizes and alignments, in bytes.
const (
	stringRefSize      = 8
	stringRefAlign     = 4
	fileRecordSize     = 12
	fileRecordAlign    = 4
	functionRecordSize = 16
	functionAlign      = 8
	sourceLocationSize = 16
	sourceLocAlign     = 4
	rangeEntrySize     = 16
	rangeEntryAlign    = 8
)

// Language is the source language of a function, as recorded by the converter.
type Language uint32

const (
	LanguageUnknown Language = iota
	LanguageC
	LanguageCpp
	LanguageObjC
	LanguageObjCpp
	LanguageRust
	LanguageGo
	LanguageSwift
	LanguageD
)

var languageNames = [...]string{
	LanguageUnknown: "unknown",
	LanguageC:       "c",
	LanguageCpp:     "cpp",
	LanguageObjC:    "objc",
	LanguageObjCpp:  "objcpp",
	LanguageRust:    "rust",
	LanguageGo:      "go",
	LanguageSwift:   "swift",
	LanguageD:       "d",
}

func (l Language) String() string {
	if int(l) < len(languageNames) {
		return languageNames[l]
	}
	return "unknown"
}

// ParseLanguage is the inverse of Language.String. Unknown names map to LanguageUnknown.
func ParseLanguage(s string) Language {
	for i, name := range languageNames {
		if name == s {
			return Language(i)
		}
	}
	return LanguageUnknown
}
