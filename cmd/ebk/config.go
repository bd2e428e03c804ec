package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/rupor-github/ebk/config"
	"github.com/rupor-github/ebk/state"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "dumpconfig",
		Usage: "dumps either default or actual configuration (YAML)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "default", Usage: "output default configuration instead of the one actually loaded"},
		},
		ArgsUsage: "DESTINATION",
		Action:    runDumpConfig,
	}
}

func runDumpConfig(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	cfg := env.Cfg
	if cfg == nil || cmd.Bool("default") {
		cfg = config.Default()
	}

	data, err := config.Dump(cfg)
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	out := os.Stdout
	if len(fname) > 0 {
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file %q: %w", fname, err)
		}
		defer f.Close()
		out = f
	}

	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
