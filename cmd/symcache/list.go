package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

var (
	listOffset int64
	listLimit  int64
)

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "offset",
			Usage:       "index of the first entry to print",
			Destination: &listOffset,
		},
		&cli.Int64Flag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "maximum number of entries to print (0 for all)",
			Destination: &listLimit,
		},
	}
}

func functionsCmd() *cli.Command {
	return &cli.Command{
		Name:      "functions",
		Usage:     "List the functions of a cache",
		ArgsUsage: "<cache>",
		Flags:     append([]cli.Flag{cachesDirFlag(), jsonFlag()}, pageFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openArg(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			fns, err := f.Functions(int(listOffset), int(listLimit))
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if jsonOutput {
				return printJSON(w, fns)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "INDEX\tENTRY\tLANG\tNAME")
			for _, fn := range fns {
				entry := "-"
				if fn.EntryAddress != nil {
					entry = fmt.Sprintf("%#x", *fn.EntryAddress)
				}
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", fn.Index, entry, orDash(fn.Language), fn.Name)
			}
			return tw.Flush()
		},
	}
}

func filesCmd() *cli.Command {
	return &cli.Command{
		Name:      "files",
		Usage:     "List the source files of a cache",
		ArgsUsage: "<cache>",
		Flags:     append([]cli.Flag{cachesDirFlag(), jsonFlag()}, pageFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openArg(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			files, err := f.Files(int(listOffset), int(listLimit))
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if jsonOutput {
				return printJSON(w, files)
			}
			for _, file := range files {
				_, _ = fmt.Fprintf(w, "%d\t%s\n", file.Index, file.Path)
			}
			return nil
		},
	}
}
