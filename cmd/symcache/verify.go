package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/symcache/internal/logger"
	"github.com/samcharles93/symcache/pkg/symcache"
)

type verifyResult struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check every table, string and reference of one or more caches",
		ArgsUsage: "[cache...]",
		Description: "Without arguments every .symc file in the caches directory is checked. " +
			"Exits non-zero if any cache fails.",
		Flags: []cli.Flag{cachesDirFlag(), jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyCachesDirConfig(cmd, LoadConfig())

			var paths []string
			if cmd.NArg() == 0 {
				dir, err := resolveCachesDir(cachesDir)
				if err != nil {
					return err
				}
				if paths, err = discoverCaches(dir); err != nil {
					return err
				}
			}
			for _, arg := range cmd.Args().Slice() {
				p, err := resolveCachePath(arg, cachesDir)
				if err != nil {
					return err
				}
				paths = append(paths, p)
			}

			results := make([]verifyResult, 0, len(paths))
			failed := 0
			for _, p := range paths {
				res := verifyResult{Path: p, OK: true}
				if err := verifyFile(p); err != nil {
					res.OK, res.Error = false, err.Error()
					failed++
					log.Debug("verify failed", "path", p, "error", err)
				}
				results = append(results, res)
			}

			w := stdout(cmd)
			if jsonOutput {
				if err := printJSON(w, results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.OK {
						_, _ = fmt.Fprintf(w, "ok    %s\n", r.Path)
					} else {
						_, _ = fmt.Fprintf(w, "FAIL  %s: %s\n", r.Path, r.Error)
					}
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("verify: %d of %d caches failed", failed, len(paths)), 1)
			}
			return nil
		},
	}
}

func verifyFile(path string) error {
	c, err := symcache.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return c.Verify()
}
