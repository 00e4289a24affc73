package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/eventlink/internal/config"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Fetch a fresh token for the configured subject and print it",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadAndValidate(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(cfg.Log, c.App.ErrWriter)
			provider, err := newProvider(cfg.Auth, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, cfg.Stream.DialTimeout)
			defer cancel()

			token, err := provider.Token(ctx)
			if err != nil {
				return fmt.Errorf("fetch token: %w", err)
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
