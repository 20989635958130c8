// Package pprofsym fills in function and line information of pprof profiles from SymCache
// files.
package pprofsym

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/samcharles93/symcache/internal/logger"
	"github.com/samcharles93/symcache/internal/symstore"
)

// Resolver finds the cache for a name. *symstore.Registry implements it.
type Resolver interface {
	Get(name string) (*symstore.File, error)
}

type Options struct {
	// RawAddresses looks up location addresses as they are, without translating them by
	// the mapping's start and file offset.
	RawAddresses bool
	// Force re-symbolizes mappings and locations that already carry symbols.
	Force bool
}

// Stats summarises one Symbolize run.
type Stats struct {
	Mappings      int      `json:"mappings"`
	Locations     int      `json:"locations"`
	Symbolized    int      `json:"symbolized"`
	Unmapped      int      `json:"unmapped"`
	MissingCaches []string `json:"missing_caches,omitempty"`
}

type Symbolizer struct {
	resolver Resolver
	opts     Options
	log      logger.Logger
}

func New(r Resolver, opts Options, log logger.Logger) *Symbolizer {
	if log == nil {
		log = logger.Default()
	}
	return &Symbolizer{resolver: r, opts: opts, log: log.With("component", "pprofsym")}
}

// Symbolize resolves every unsymbolized location of p in place. Mappings without a cache
// are skipped and listed in Stats.MissingCaches. Lookup failures are collected and returned
// together after every mapping was processed.
func (s *Symbolizer) Symbolize(ctx context.Context, p *profile.Profile) (Stats, error) {
	var stats Stats
	byMapping := make(map[*profile.Mapping][]*profile.Location)
	for _, loc := range p.Location {
		if loc.Mapping == nil || (len(loc.Line) > 0 && !s.opts.Force) {
			continue
		}
		byMapping[loc.Mapping] = append(byMapping[loc.Mapping], loc)
	}

	fns := newFunctionTable(p)
	var errs []error
	for _, m := range p.Mapping {
		locs := byMapping[m]
		if len(locs) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if m.HasFunctions && m.HasFilenames && m.HasLineNumbers && !s.opts.Force {
			continue
		}

		f, name, err := s.cacheFor(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping %d: %w", m.ID, err))
			continue
		}
		if f == nil {
			stats.MissingCaches = append(stats.MissingCaches, mappingLabel(m))
			continue
		}
		stats.Mappings++

		symbolized := 0
		for _, loc := range locs {
			stats.Locations++
			addr, ok := s.address(loc.Address, m)
			if !ok {
				stats.Unmapped++
				continue
			}
			frames, err := f.Symbolicate(addr)
			if err != nil {
				errs = append(errs, fmt.Errorf("location %d (%#x) in %s: %w", loc.ID, loc.Address, name, err))
				continue
			}
			if len(frames) == 0 {
				stats.Unmapped++
				continue
			}
			loc.Line = loc.Line[:0]
			for _, fr := range frames {
				loc.Line = append(loc.Line, profile.Line{
					Function: fns.get(fr.Function, fr.File),
					Line:     int64(fr.Line),
				})
			}
			symbolized++
		}
		stats.Symbolized += symbolized
		if symbolized > 0 {
			m.HasFunctions = true
			m.HasFilenames = true
			m.HasLineNumbers = true
			m.HasInlineFrames = true
		}
		s.log.Debug("mapping symbolized", "mapping", mappingLabel(m), "cache", name, "locations", len(locs), "symbolized", symbolized)
	}
	return stats, errors.Join(errs...)
}

// SymbolizeStream parses a profile from r, symbolizes it and writes it gzip-compressed to w.
func (s *Symbolizer) SymbolizeStream(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return Stats{}, fmt.Errorf("parse profile: %w", err)
	}
	stats, symErr := s.Symbolize(ctx, p)
	if err := p.CheckValid(); err != nil {
		return stats, fmt.Errorf("symbolized profile is invalid: %w", err)
	}
	if err := p.Write(w); err != nil {
		return stats, fmt.Errorf("write profile: %w", err)
	}
	return stats, symErr
}

// cacheFor returns the cache of m, trying the build id first and then the base name of the
// mapped file. A nil file and nil error mean there is no cache for m.
func (s *Symbolizer) cacheFor(m *profile.Mapping) (*symstore.File, string, error) {
	for _, name := range candidateNames(m) {
		f, err := s.resolver.Get(name)
		switch {
		case err == nil:
			return f, name, nil
		case errors.Is(err, symstore.ErrCacheNotFound), errors.Is(err, symstore.ErrInvalidName):
			continue
		default:
			return nil, name, err
		}
	}
	return nil, "", nil
}

func candidateNames(m *profile.Mapping) []string {
	var names []string
	if m.BuildID != "" {
		names = append(names, m.BuildID)
	}
	if m.File != "" {
		base := filepath.Base(m.File)
		names = append(names, base)
		if ext := filepath.Ext(base); ext != "" {
			names = append(names, strings.TrimSuffix(base, ext))
		}
	}
	return names
}

func mappingLabel(m *profile.Mapping) string {
	if m.File != "" {
		return m.File
	}
	if m.BuildID != "" {
		return m.BuildID
	}
	return fmt.Sprintf("mapping#%d", m.ID)
}

// address translates a runtime address into the object's address space, assuming the
// mapping was loaded at Start for file offset Offset. It reports false for addresses below
// Start, which cannot belong to the mapping.
func (s *Symbolizer) address(addr uint64, m *profile.Mapping) (uint64, bool) {
	if s.opts.RawAddresses || (m.Start == 0 && m.Offset == 0) {
		return addr, true
	}
	if addr < m.Start {
		return 0, false
	}
	return addr - m.Start + m.Offset, true
}

type funcKey struct {
	name, file string
}

// functionTable reuses the profile's functions by name and file and appends new ones with
// fresh ids.
type functionTable struct {
	p      *profile.Profile
	byKey  map[funcKey]*profile.Function
	nextID uint64
}

func newFunctionTable(p *profile.Profile) *functionTable {
	t := &functionTable{p: p, byKey: make(map[funcKey]*profile.Function, len(p.Function)), nextID: 1}
	for _, fn := range p.Function {
		t.byKey[funcKey{fn.Name, fn.Filename}] = fn
		if fn.ID >= t.nextID {
			t.nextID = fn.ID + 1
		}
	}
	return t
}

func (t *functionTable) get(name, file string) *profile.Function {
	key := funcKey{name, file}
	if fn, ok := t.byKey[key]; ok {
		return fn
	}
	fn := &profile.Function{
		ID:         t.nextID,
		Name:       name,
		SystemName: name,
		Filename:   file,
	}
	t.nextID++
	t.byKey[key] = fn
	t.p.Function = append(t.p.Function, fn)
	return fn
}
