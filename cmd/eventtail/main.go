// Command eventtail keeps a realtime event stream open, prints selected
// events and optionally archives them to Postgres.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/eventlink/internal/version"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "eventtail",
		Usage:   "Tail a realtime event stream",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				EnvVars: []string{"EVENTTAIL_CONFIG"},
				Value:   "configs/eventtail.yaml",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			tokenCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, version.String())
			return nil
		},
	}
}
