package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"modelardb-sim/internal/eventlog"
	"modelardb-sim/internal/events"
	"modelardb-sim/internal/ratio"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/tui"
)

var (
	replayInput   string
	replaySpeed   float64
	replayCatalog string
	replayQuiet   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay an event log file",
	Long:  "replay reads a JSONL event log back and prints the compression ratios it implies.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		reg, err := loadRegistry(replayCatalog)
		if err != nil {
			return err
		}
		tracker := ratio.NewTracker(reg.TableNames(), 0)
		out := cmd.OutOrStdout()
		err = eventlog.ReplayFile(cmd.Context(), replayInput, replaySpeed, func(env events.Envelope, ev events.Event) error {
			tracker.Observe(ev, env.Timestamp)
			if replayQuiet {
				return nil
			}
			_, err := fmt.Fprintln(out, tui.FormatLine(env))
			return err
		})
		if err != nil {
			return err
		}
		return printSummaries(out, tracker)
	},
}

func printSummaries(w io.Writer, tracker *ratio.Tracker) error {
	if _, err := fmt.Fprintf(w, "%-12s %12s %12s %8s\n", "type", "ingested", "stored", "ratio"); err != nil {
		return err
	}
	for _, t := range registry.DeploymentTypes {
		s := tracker.Summary(string(t))
		if _, err := fmt.Fprintf(w, "%-12s %12s %12s %8.2f\n", s.NodeType, humanize.Bytes(s.Ingested), humanize.Bytes(s.Transferred), s.Ratio); err != nil {
			return err
		}
		for _, tb := range s.Tables {
			if _, err := fmt.Fprintf(w, "  %-10s %12s %12s %8.2f\n", tb.Name, humanize.Bytes(tb.Ingested), humanize.Bytes(tb.Transferred), tb.Ratio); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to event log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier; 0 replays without delay")
	replayCmd.Flags().StringVar(&replayCatalog, "catalog", "", "Catalog the log was recorded with; empty uses the built-in catalog")
	replayCmd.Flags().BoolVar(&replayQuiet, "quiet", false, "Only print the final summary")
	replayCmd.MarkFlagRequired("input")
}
