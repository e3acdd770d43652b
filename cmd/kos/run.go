package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaedeos/kos/internal/klog"
	"github.com/kaedeos/kos/internal/runtime"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the KOS runtime and block until a termination signal",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtime.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to construct runtime: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		klog.Info(fmt.Sprintf("kos runtime starting, storage root=%s", cfg.Root))
		return rt.Run(ctx)
	},
}
