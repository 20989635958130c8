package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header and table sizes of a cache",
		ArgsUsage: "<cache>",
		Flags:     []cli.Flag{cachesDirFlag(), jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := openArg(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			info, err := f.Info()
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if jsonOutput {
				return printJSON(w, info)
			}

			h := f.Cache().Header()
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "file:\t%s\n", info.Path)
			_, _ = fmt.Fprintf(tw, "size:\t%s (%d bytes)\n", humanize.IBytes(uint64(info.Size)), info.Size)
			_, _ = fmt.Fprintf(tw, "name:\t%s\n", orDash(info.DebugName))
			_, _ = fmt.Fprintf(tw, "version:\t%d\n", h.Version)
			_, _ = fmt.Fprintf(tw, "file info:\t%t\n", info.HasFileInfo)
			_, _ = fmt.Fprintf(tw, "line info:\t%t\n", info.HasLineInfo)
			_, _ = fmt.Fprintln(tw)
			_, _ = fmt.Fprintln(tw, "TABLE\tOFFSET\tCOUNT")
			for _, row := range []struct {
				name   string
				offset uint64
				count  uint32
			}{
				{"strings", h.Strings.Offset, h.Strings.Count},
				{"string data", h.StringData.Offset, h.StringData.Count},
				{"files", h.Files.Offset, h.Files.Count},
				{"functions", h.Functions.Offset, h.Functions.Count},
				{"source locations", h.SourceLocs.Offset, h.SourceLocs.Count},
				{"ranges", h.Ranges.Offset, h.Ranges.Count},
			} {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\n", row.name, row.offset, row.count)
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
