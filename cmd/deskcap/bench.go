package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/deskcap/internal/capture"
	"github.com/breeze-rmm/deskcap/internal/dxgi"
	"github.com/breeze-rmm/deskcap/internal/logging"
)

type benchResult struct {
	Display    string
	Path       string
	Elapsed    time.Duration
	Frames     int
	WouldBlock int
	Errors     int
}

func (r benchResult) fps() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

func (a *app) benchCmd() *cobra.Command {
	var (
		display  int
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the capture rate of one display",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("display") {
				display = a.cfg.DisplayIndex
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			r, err := a.bench(ctx, display)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "display:     %s\n", r.Display)
			fmt.Fprintf(out, "path:        %s\n", r.Path)
			fmt.Fprintf(out, "elapsed:     %s\n", r.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "frames:      %d (%.1f/s)\n", r.Frames, r.fps())
			fmt.Fprintf(out, "would block: %d\n", r.WouldBlock)
			fmt.Fprintf(out, "errors:      %d\n", r.Errors)
			return nil
		},
	}
	cmd.Flags().IntVarP(&display, "display", "d", 0, "display index (default from config)")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to poll")
	return cmd
}

// bench polls as fast as frames arrive until ctx ends, sleeping one poll
// interval after each WouldBlock. Losing access to the desktop ends the run.
func (a *app) bench(ctx context.Context, display int) (benchResult, error) {
	d, c, err := a.openCapturer(display)
	if err != nil {
		return benchResult{}, err
	}
	defer d.Close()
	defer c.Close()

	r := benchResult{Display: d.Name(), Path: "staging"}
	if c.Fastlane() {
		r.Path = "fastlane"
	}

	interval := a.cfg.PollInterval()
	start := time.Now()
loop:
	for ctx.Err() == nil {
		_, err := c.Frame()
		switch {
		case err == nil:
			r.Frames++
			continue
		case errors.Is(err, capture.WouldBlock):
			r.WouldBlock++
		case errors.Is(err, dxgi.ConnectionReset), errors.Is(err, dxgi.ConnectionAborted):
			r.Errors++
			log.Warn("desktop access lost", logging.KeyDisplay, r.Display, logging.KeyError, err)
			break loop
		default:
			r.Errors++
			log.Debug("frame failed", logging.KeyError, err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
	r.Elapsed = time.Since(start)

	log.Info("bench finished",
		logging.KeyDisplay, r.Display,
		logging.KeyDurationMs, r.Elapsed.Milliseconds(),
		"frames", r.Frames,
		"path", r.Path,
	)
	return r, nil
}
