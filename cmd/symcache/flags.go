package main

import "github.com/urfave/cli/v3"

var (
	cachesDir  string
	jsonOutput bool
	logLevel   string
	logFormat  string
	debug      bool
)

func cachesDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "caches-dir",
		Aliases:     []string{"dir"},
		Usage:       "directory holding .symc files (default $" + envCachesDir + " or config caches_dir)",
		Destination: &cachesDir,
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print machine readable JSON",
		Destination: &jsonOutput,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
