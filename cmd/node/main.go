package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/meridian-lab/meridian-trading/internal/node"
)

// runAction loads the config, builds the trading node and runs it until the
// process is signaled.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := node.LoadConfig(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	n, err := node.NewTradingNode(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build trading node: %w", err)
	}

	defer func() {
		if err := n.Dispose(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "dispose failed: %v\n", err)
		}
	}()

	return n.Run(ctx)
}

func main() {
	cmd := &cli.Command{
		Name:  "node",
		Usage: "Run a live trading node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML node configuration",
				Required: true,
			},
		},
		Action: runAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
