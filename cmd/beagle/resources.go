package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/omsai/beagle-lib/internal/resource"
)

func resourcesCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "resources",
		Usage: "List compute resources available on this host",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the list as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			resources := resource.List()
			if asJSON {
				type entry struct {
					ID    int    `json:"id"`
					Name  string `json:"name"`
					Flags string `json:"flags"`
				}
				out := make([]entry, len(resources))
				for i, r := range resources {
					out[i] = entry{ID: r.ID, Name: r.Name, Flags: r.Flags.String()}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for _, r := range resources {
				fmt.Printf("%d\t%s\t%s\n", r.ID, r.Name, r.Flags)
			}
			return nil
		},
	}
}
