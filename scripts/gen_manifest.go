// Command gen_manifest writes a synthetic pack manifest to stdout, for load testing the
// reader and the server:
//
//	go run ./scripts 20000 | symcache pack -m - -o /tmp/caches/synthetic.symc
package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/samcharles93/symcache/pkg/symcache/builder"
)

const (
	filesPerCache = 64
	baseAddress   = 0x400000
)

func main() {
	n := 1000
	if len(os.Args) > 1 {
		v, err := strconv.Atoi(os.Args[1])
		if err != nil || v <= 0 {
			fmt.Fprintf(os.Stderr, "usage: %s [functions]\n", os.Args[0])
			os.Exit(2)
		}
		n = v
	}

	if err := json.NewEncoder(os.Stdout).Encode(generate(n, rand.New(rand.NewPCG(1, 2)))); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// generate lays functions out back to back. Every fourth function has a helper inlined into
// the middle of its body.
func generate(n int, rng *rand.Rand) builder.Manifest {
	m := builder.Manifest{Name: "synthetic"}
	for i := range filesPerCache {
		m.Files = append(m.Files, builder.ManifestFile{
			Name:      fmt.Sprintf("file%03d.c", i),
			Directory: fmt.Sprintf("src/mod%02d", i%8),
			CompDir:   "/build",
		})
	}
	helper := uint32(n)

	addr := uint64(baseAddress)
	for i := range n {
		entry := builder.Address(addr)
		m.Functions = append(m.Functions, builder.ManifestFunction{
			Name:         fmt.Sprintf("fn_%d", i),
			EntryAddress: &entry,
			Language:     "c",
		})

		file := uint32(rng.IntN(filesPerCache))
		fn := uint32(i)
		line := uint32(10 + rng.IntN(2000))
		body := uint32(len(m.SourceLocations))
		m.SourceLocations = append(m.SourceLocations, builder.ManifestSourceLocation{File: &file, Function: &fn, Line: line})
		m.Ranges = append(m.Ranges, builder.ManifestRange{Start: builder.Address(addr), SourceLocation: body})

		size := uint64(32 + 16*rng.IntN(16))
		if i%4 == 0 {
			call := uint32(len(m.SourceLocations))
			m.SourceLocations = append(m.SourceLocations,
				builder.ManifestSourceLocation{File: &file, Function: &fn, Line: line + 2},
				builder.ManifestSourceLocation{File: &file, Function: &helper, Line: 3, Parent: &call},
			)
			m.Ranges = append(m.Ranges,
				builder.ManifestRange{Start: builder.Address(addr + 16), SourceLocation: call + 1},
				builder.ManifestRange{Start: builder.Address(addr + 24), SourceLocation: body},
			)
		}
		addr += size
	}
	m.Functions = append(m.Functions, builder.ManifestFunction{Name: "inline_helper", Language: "c"})
	return m
}
