package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/deskcap/internal/capture"
	"github.com/breeze-rmm/deskcap/internal/logging"
)

func (a *app) grabCmd() *cobra.Command {
	var (
		display int
		file    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "grab",
		Short: "Capture a single frame to a PNG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("display") {
				display = a.cfg.DisplayIndex
			}
			if timeout <= 0 {
				timeout = a.cfg.GrabTimeout()
			}

			d, c, err := a.openCapturer(display)
			if err != nil {
				return err
			}
			defer d.Close()
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			f, err := capture.Poll(ctx, c, a.cfg.PollInterval())
			if err != nil {
				return fmt.Errorf("grab %s: %w", d.Name(), err)
			}
			img, err := f.Image()
			if err != nil {
				return err
			}
			if err := writePNG(file, img); err != nil {
				return err
			}

			log.Info("frame captured",
				logging.KeyDisplay, d.Name(),
				logging.KeyDurationMs, time.Since(start).Milliseconds(),
				"path", file,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d)\n", file, c.Width(), c.Height())
			return nil
		},
	}
	cmd.Flags().IntVarP(&display, "display", "d", 0, "display index (default from config)")
	cmd.Flags().StringVarP(&file, "file", "f", "grab.png", "output PNG path")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for a frame (default from config)")
	return cmd
}

func writePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := capture.PNGEncoder.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
