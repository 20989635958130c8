package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/symcache/internal/logger"
	"github.com/samcharles93/symcache/internal/pprofsym"
	"github.com/samcharles93/symcache/internal/symstore"
)

func symbolicateProfileCmd() *cli.Command {
	var (
		inPath  string
		outPath string
		opts    pprofsym.Options
	)

	return &cli.Command{
		Name:  "symbolicate-profile",
		Usage: "Fill in functions and lines of a pprof profile from the caches directory",
		Description: "Mappings are matched to caches by build id first, then by the base name " +
			"of the mapped file.",
		Flags: []cli.Flag{
			cachesDirFlag(),
			&cli.StringFlag{
				Name:        "in",
				Aliases:     []string{"i"},
				Usage:       "input profile, - for stdin",
				Value:       "-",
				Destination: &inPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output profile, - for stdout",
				Value:       "-",
				Destination: &outPath,
			},
			&cli.BoolFlag{
				Name:        "raw-addresses",
				Usage:       "look addresses up as they are instead of relative to their mapping",
				Destination: &opts.RawAddresses,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "re-symbolize locations that already have lines",
				Destination: &opts.Force,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyCachesDirConfig(cmd, LoadConfig())
			dir, err := resolveCachesDir(cachesDir)
			if err != nil {
				return err
			}
			store, err := symstore.NewRegistry(symstore.Options{Dir: dir, Logger: log})
			if err != nil {
				return err
			}

			var in io.Reader = os.Stdin
			if inPath != "-" {
				f, err := os.Open(inPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			var out io.Writer = stdout(cmd)
			if outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			stats, err := pprofsym.New(store, opts, log).SymbolizeStream(ctx, in, out)
			log.Info("profile symbolicated",
				"mappings", stats.Mappings,
				"locations", stats.Locations,
				"symbolized", stats.Symbolized,
				"unmapped", stats.Unmapped,
			)
			for _, m := range stats.MissingCaches {
				log.Warn("no cache for mapping", "mapping", m)
			}
			if err != nil {
				return fmt.Errorf("symbolicate-profile: %w", err)
			}
			return nil
		},
	}
}
