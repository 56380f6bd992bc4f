package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"modelardb-sim/internal/admin"
	"modelardb-sim/internal/eventlog"
	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
	"modelardb-sim/internal/metrics"
	"modelardb-sim/internal/ratio"
	"modelardb-sim/internal/sim"
)

var (
	serveCatalog       string
	serveAddr          string
	serveTick          time.Duration
	serveBackend       string
	serveStoreDir      string
	serveBandwidth     float64
	serveLogFile       string
	servePrintOnly     bool
	serveRatioWindow   time.Duration
	serveFlushTimeout  time.Duration
	serveSampleTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation engine and its HTTP command boundary",
	Long:  "serve starts the scheduler engine, the command and query API, and the websocket event stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.FromContext(cmd.Context())

		reg, err := loadRegistry(serveCatalog)
		if err != nil {
			return err
		}

		tick := serveTick
		if envTick := os.Getenv("TICK_INTERVAL"); envTick != "" {
			d, err := time.ParseDuration(envTick)
			if err != nil {
				return err
			}
			tick = d
		}

		w, err := newBackend(reg, backendOptions{Kind: serveBackend, StoreDir: serveStoreDir, Bandwidth: serveBandwidth})
		if err != nil {
			return err
		}
		defer w.cleanup()

		evw, closeLog, err := newEventWriter(servePrintOnly, serveLogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bus := events.NewBus(0)
		bus.OnDrop = func(ev events.Event) { metrics.RecordDropped(ev.Name) }

		// subscribe before the simulator can publish anything
		tracker := ratio.NewTracker(reg.TableNames(), serveRatioWindow)
		go tracker.Follow(ctx, bus.Subscribe(), nil)
		if evw != nil {
			go eventlog.Drain(ctx, bus.Subscribe(), evw, nil)
		}

		simulator := sim.New(reg, w.Backend, bus, sim.Options{
			Tick:          tick,
			FlushTimeout:  serveFlushTimeout,
			SampleTimeout: serveSampleTimeout,
		}, log)

		srv := admin.NewServer(simulator, w.Query, w.Faults, tracker)
		errc := make(chan error, 1)
		go func() { errc <- srv.Start(ctx, serveAddr) }()

		log.Info("simulation ready", "backend", serveBackend, "tables", len(reg.Tables()), "nodes", len(reg.Nodes()), "tick", tick)

		select {
		case <-ctx.Done():
			err = <-errc
		case err = <-errc:
			stop()
		}
		simulator.Close()
		log.Info("simulation stopped")
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveCatalog, "catalog", "", "Path to the table and node catalog (JSON, JSONC or YAML); empty uses the built-in catalog")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().DurationVar(&serveTick, "tick", sim.DefaultTick, "Ingestion tick interval (e.g. 500ms, 2s)")
	serveCmd.Flags().StringVar(&serveBackend, "backend", backendSim, "Storage backend: sim (in-process engines) or flight (real nodes over Arrow Flight)")
	serveCmd.Flags().StringVar(&serveStoreDir, "store-dir", "", "Directory holding the mounted object-store buckets (flight backend)")
	serveCmd.Flags().Float64Var(&serveBandwidth, "bandwidth", 0, "Simulated upload bandwidth in bytes per second; 0 uploads instantly")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Path to export published events (JSONL)")
	serveCmd.Flags().BoolVar(&servePrintOnly, "print-only", false, "Print published events to STDOUT")
	serveCmd.Flags().DurationVar(&serveRatioWindow, "ratio-window", time.Minute, "Window of the rolling compression ratio")
	serveCmd.Flags().DurationVar(&serveFlushTimeout, "flush-timeout", sim.DefaultFlushTimeout, "Upper bound of one node flush")
	serveCmd.Flags().DurationVar(&serveSampleTimeout, "sample-timeout", sim.DefaultSampleTimeout, "Upper bound of one object-store size query")
}
