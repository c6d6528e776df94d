package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/omsai/beagle-lib/internal/engine"
	"github.com/omsai/beagle-lib/internal/scenario"
)

func evalCmd() *cli.Command {
	var (
		rescale bool
		asJSON  bool
	)

	flags := append(loggingFlags(), selectionFlags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "rescale",
			Usage:       "force per-site rescaling during peeling",
			Destination: &rescale,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit the result as JSON",
			Destination: &asJSON,
		},
	)

	return &cli.Command{
		Name:      "eval",
		Usage:     "Evaluate a scenario file and print per-site log likelihoods",
		ArgsUsage: "<scenario.yaml>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: exactly one scenario file is required", 1)
			}
			applyEvalConfig(cmd, LoadConfig())
			log := buildLogger()

			sc, err := scenario.Load(cmd.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if rescale {
				sc.Rescale = true
			}

			restrict, req, pref, err := selectionOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			result, err := sc.Run(engine.New(log), scenario.Options{
				Restrict:  restrict,
				Required:  req,
				Preferred: pref,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if result.Name != "" {
				fmt.Printf("scenario: %s\n", result.Name)
			}
			fmt.Printf("resource: %s\n", result.Resource)
			for i, l := range result.LogLikelihoods {
				fmt.Printf("site %4d  %.10f\n", i, l)
			}
			fmt.Printf("total     %.10f\n", result.Total)
			return nil
		},
	}
}
