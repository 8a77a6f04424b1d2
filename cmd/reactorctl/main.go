package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nabbar/reactor/instance"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{
		Use:   "reactorctl [config.ini]",
		Short: "reactor is an event-driven TCP server/client framework",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				configPath = args[0]
			}
			return serve(cmd.Context(), configPath)
		},
	}
	root.SilenceUsage = true

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := instance.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	inst := instance.New(cfg, instance.Hooks{})
	if err := inst.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	inst.Log.Info("reactor started")
	inst.Run(ctx)
	inst.Log.Info("reactor stopped")
	return nil
}
