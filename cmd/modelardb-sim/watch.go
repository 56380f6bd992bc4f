package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"modelardb-sim/internal/tui"
)

var (
	watchURL    string
	watchWindow time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running simulator in the terminal",
	Long:  "watch subscribes to the event stream of a serve instance and renders throughput, compression ratios, and flush activity.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return tui.Watch(ctx, watchURL, watchWindow)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:8080", "Base URL of the serve instance")
	watchCmd.Flags().DurationVar(&watchWindow, "ratio-window", time.Minute, "Window of the rolling compression ratio")
}
