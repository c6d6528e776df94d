package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omsai/beagle-lib/internal/logger"
	"github.com/omsai/beagle-lib/internal/resource"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	restrictID int64
	required   []string
	preferred  []string
)

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
			Usage:       "log format (pretty, json)",
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

func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "resource",
			Aliases:     []string{"r"},
			Usage:       "restrict evaluation to a single resource id",
			Value:       -1,
			Destination: &restrictID,
		},
		&cli.StringSliceFlag{
			Name:        "require",
			Usage:       "required capability flags (cpu, sse, double, single, sync, async)",
			Destination: &required,
		},
		&cli.StringSliceFlag{
			Name:        "prefer",
			Usage:       "preferred capability flags, used to rank matching resources",
			Destination: &preferred,
		},
	}
}

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}

func selectionOptions() (restrict []int, req, pref resource.Flags, err error) {
	if restrictID >= 0 {
		restrict = []int{int(restrictID)}
	}
	if req, err = parseFlagNames(required); err != nil {
		return nil, 0, 0, err
	}
	if pref, err = parseFlagNames(preferred); err != nil {
		return nil, 0, 0, err
	}
	return restrict, req, pref, nil
}

func parseFlagNames(names []string) (resource.Flags, error) {
	var flags resource.Flags
	for _, name := range names {
		f, ok := resource.ParseFlag(name)
		if !ok {
			return 0, fmt.Errorf("unknown capability flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}
