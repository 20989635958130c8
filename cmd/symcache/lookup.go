package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/symcache/internal/symstore"
)

type lookupResult struct {
	Address string           `json:"address"`
	Frames  []symstore.Frame `json:"frames"`
}

func lookupCmd() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Resolve addresses to their inline chain",
		ArgsUsage: "<cache> <address>...",
		Flags:     []cli.Flag{cachesDirFlag(), jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 2 {
				return fmt.Errorf("lookup: need a cache and at least one address")
			}
			addrs := make([]uint64, 0, cmd.NArg()-1)
			for _, a := range cmd.Args().Slice()[1:] {
				v, err := parseAddress(a)
				if err != nil {
					return err
				}
				addrs = append(addrs, v)
			}

			f, err := openArg(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			results := make([]lookupResult, 0, len(addrs))
			for _, addr := range addrs {
				frames, err := f.Symbolicate(addr)
				if err != nil {
					return fmt.Errorf("lookup %#x: %w", addr, err)
				}
				if frames == nil {
					frames = []symstore.Frame{}
				}
				results = append(results, lookupResult{Address: fmt.Sprintf("%#x", addr), Frames: frames})
			}

			w := stdout(cmd)
			if jsonOutput {
				return printJSON(w, results)
			}
			for _, r := range results {
				if len(r.Frames) == 0 {
					_, _ = fmt.Fprintf(w, "%s: not found\n", r.Address)
					continue
				}
				_, _ = fmt.Fprintf(w, "%s:\n", r.Address)
				for _, fr := range r.Frames {
					formatFrame(w, fr)
				}
			}
			return nil
		},
	}
}
