package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/symcache/internal/logger"
	"github.com/samcharles93/symcache/pkg/symcache"
	"github.com/samcharles93/symcache/pkg/symcache/builder"
)

func packCmd() *cli.Command {
	var (
		manifestPath string
		outPath      string
		name         string
	)

	return &cli.Command{
		Name:  "pack",
		Usage: "Build a .symc file from a JSON manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "manifest",
				Aliases:     []string{"m", "in"},
				Usage:       "manifest JSON file, - for stdin",
				Required:    true,
				Destination: &manifestPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .symc path (default: manifest name next to the manifest)",
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "override the debug name stored in the cache",
				Destination: &name,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			m, err := readManifest(manifestPath)
			if err != nil {
				return err
			}
			if name != "" {
				m.Name = name
			}
			b, err := m.Builder()
			if err != nil {
				return err
			}
			data, err := b.Bytes()
			if err != nil {
				return err
			}

			// Refuse to write anything the reader would reject.
			c, err := symcache.OpenBytes(data)
			if err != nil {
				return fmt.Errorf("pack: built cache does not load: %w", err)
			}
			if err := c.Verify(); err != nil {
				return fmt.Errorf("pack: built cache does not verify: %w", err)
			}
			stats := c.Stats()

			out, err := resolvePackOut(manifestPath, outPath)
			if err != nil {
				return err
			}
			if err := builder.WriteAtomic(out, data); err != nil {
				return err
			}
			log.Info("packed cache",
				"out", out,
				"size", humanize.IBytes(uint64(len(data))),
				"functions", stats.Functions,
				"files", stats.Files,
				"source_locations", stats.SourceLocations,
				"ranges", stats.Ranges,
			)
			return nil
		},
	}
}

func readManifest(path string) (*builder.Manifest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return builder.ReadManifest(r)
}

// resolvePackOut returns the explicit output path, or the manifest path with its extension
// replaced by .symc.
func resolvePackOut(manifestPath, outFlag string) (string, error) {
	outFlag = strings.TrimSpace(outFlag)
	if outFlag == "" {
		if manifestPath == "-" {
			return "", fmt.Errorf("pack: --out is required when reading the manifest from stdin")
		}
		outFlag = strings.TrimSuffix(manifestPath, filepath.Ext(manifestPath)) + ".symc"
	}
	out := filepath.Clean(outFlag)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	return out, nil
}
