package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/symcache/internal/symstore"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// parseAddress accepts decimal, 0x-prefixed hex and the other strconv base prefixes.
func parseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

func openArg(cmd *cli.Command) (*symstore.File, error) {
	if cmd.NArg() < 1 {
		return nil, fmt.Errorf("%s: missing cache argument", cmd.Name)
	}
	applyCachesDirConfig(cmd, LoadConfig())
	path, err := resolveCachePath(cmd.Args().First(), cachesDir)
	if err != nil {
		return nil, err
	}
	return symstore.Open(path)
}

func formatFrame(w io.Writer, fr symstore.Frame) {
	fn := fr.Function
	if fn == "" {
		fn = "??"
	}
	file := fr.File
	if file == "" {
		file = "??"
	}
	prefix := "  "
	if fr.Inlined {
		prefix = "  (inlined) "
	}
	_, _ = fmt.Fprintf(w, "%s%s at %s:%d\n", prefix, fn, file, fr.Line)
}
