package builder

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/symcache/pkg/symcache"
)

// Manifest is the JSON description of a cache accepted by "symcache pack".
// Indices refer to positions in the manifest's own lists.
type Manifest struct {
	Name            string                   `json:"name"`
	Files           []ManifestFile           `json:"files"`
	Functions       []ManifestFunction       `json:"functions"`
	SourceLocations []ManifestSourceLocation `json:"source_locations"`
	Ranges          []ManifestRange          `json:"ranges"`
}

type ManifestFile struct {
	Name      string `json:"name"`
	Directory string `json:"directory,omitempty"`
	CompDir   string `json:"comp_dir,omitempty"`
}

type ManifestFunction struct {
	Name         string   `json:"name"`
	EntryAddress *Address `json:"entry_address,omitempty"`
	Language     string   `json:"language,omitempty"`
}

type ManifestSourceLocation struct {
	File     *uint32 `json:"file,omitempty"`
	Function *uint32 `json:"function,omitempty"`
	Line     uint32  `json:"line"`
	Parent   *uint32 `json:"parent,omitempty"`
}

type ManifestRange struct {
	Start          Address `json:"start"`
	SourceLocation uint32  `json:"source_location"`
}

// Address accepts a JSON number or a string in any base strconv understands ("0x1000").
type Address uint64

func (a *Address) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %s: %w", b, err)
	}
	*a = Address(v)
	return nil
}

func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + strconv.FormatUint(uint64(a), 16) + `"`), nil
}

var ErrInvalidManifest = errors.New("builder: invalid manifest")

// ReadManifest decodes a manifest from r, rejecting unknown fields.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Builder validates every cross reference of the manifest and returns a builder holding it.
func (m *Manifest) Builder() (*Builder, error) {
	b := New()
	if m.Name != "" {
		b.SetName(m.Name)
	}

	for _, f := range m.Files {
		b.AddFile(symcache.FileRecord{
			NameIdx:      b.AddString(f.Name),
			DirectoryIdx: b.optionalString(f.Directory),
			CompDirIdx:   b.optionalString(f.CompDir),
		})
	}
	for _, fn := range m.Functions {
		entry := symcache.NoAddress
		if fn.EntryAddress != nil {
			entry = uint64(*fn.EntryAddress)
		}
		b.AddFunction(symcache.FunctionRecord{
			EntryAddr: entry,
			NameIdx:   b.AddString(fn.Name),
			Language:  symcache.ParseLanguage(fn.Language),
		})
	}

	nLocs := len(m.SourceLocations)
	for i, sl := range m.SourceLocations {
		file, err := optionalIndex(sl.File, len(m.Files), "source_locations[%d].file", i)
		if err != nil {
			return nil, err
		}
		fn, err := optionalIndex(sl.Function, len(m.Functions), "source_locations[%d].function", i)
		if err != nil {
			return nil, err
		}
		parent, err := optionalIndex(sl.Parent, nLocs, "source_locations[%d].parent", i)
		if err != nil {
			return nil, err
		}
		if parent == uint32(i) {
			return nil, fmt.Errorf("%w: source_locations[%d] is its own parent", ErrInvalidManifest, i)
		}
		b.AddSourceLocation(symcache.SourceLocationRecord{
			FileIdx:     file,
			FunctionIdx: fn,
			Line:        sl.Line,
			ParentIdx:   parent,
		})
	}

	if i, ok := findParentCycle(m.SourceLocations); ok {
		return nil, fmt.Errorf("%w: parent chain of source_locations[%d] does not terminate", ErrInvalidManifest, i)
	}

	seen := make(map[Address]int, len(m.Ranges))
	for i, r := range m.Ranges {
		if uint64(r.SourceLocation) >= uint64(nLocs) {
			return nil, fmt.Errorf("%w: ranges[%d].source_location %d out of range", ErrInvalidManifest, i, r.SourceLocation)
		}
		if j, dup := seen[r.Start]; dup {
			return nil, fmt.Errorf("%w: ranges[%d] and ranges[%d] share start %#x", ErrInvalidManifest, j, i, uint64(r.Start))
		}
		seen[r.Start] = i
		b.AddRange(uint64(r.Start), r.SourceLocation)
	}
	return b, nil
}

// findParentCycle reports the first source location whose parent chain is longer than the
// list itself. Parent indices are already range checked.
func findParentCycle(locs []ManifestSourceLocation) (int, bool) {
	for i := range locs {
		cur := &locs[i]
		for steps := 0; cur.Parent != nil; steps++ {
			if steps >= len(locs) {
				return i, true
			}
			cur = &locs[*cur.Parent]
		}
	}
	return 0, false
}

func (b *Builder) optionalString(s string) uint32 {
	if s == "" {
		return symcache.NoIndex
	}
	return b.AddString(s)
}

func optionalIndex(idx *uint32, n int, field string, i int) (uint32, error) {
	if idx == nil {
		return symcache.NoIndex, nil
	}
	if uint64(*idx) >= uint64(n) {
		return 0, fmt.Errorf("%w: "+field+" %d out of range", ErrInvalidManifest, i, *idx)
	}
	return *idx, nil
}
