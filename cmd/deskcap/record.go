package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/deskcap/internal/capture"
	"github.com/breeze-rmm/deskcap/internal/logging"
	"github.com/breeze-rmm/deskcap/internal/workerpool"
)

const drainTimeout = 30 * time.Second

// runManifest is written next to the frames of a recording.
type runManifest struct {
	RunID    string    `yaml:"run_id"`
	Display  string    `yaml:"display"`
	Width    int       `yaml:"width"`
	Height   int       `yaml:"height"`
	Fastlane bool      `yaml:"fastlane"`
	Started  time.Time `yaml:"started"`
	Duration string    `yaml:"duration"`
	Frames   int64     `yaml:"frames"`
	Failed   int64     `yaml:"failed"`
}

func (a *app) recordCmd() *cobra.Command {
	var (
		display int
		frames  int
		dir     string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture a sequence of frames as numbered PNG files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("display") {
				display = a.cfg.DisplayIndex
			}
			if frames <= 0 {
				frames = a.cfg.RecordFrames
			}
			if dir == "" {
				dir = a.cfg.OutputDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			m, err := a.record(ctx, display, frames, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d frames to %s\n", m.Frames, filepath.Join(dir, m.RunID))
			return nil
		},
	}
	cmd.Flags().IntVarP(&display, "display", "d", 0, "display index (default from config)")
	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "number of frames (default from config)")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default from config)")
	return cmd
}

// record polls frames until count have been queued or ctx ends. Each frame
// is copied out of the session before it is handed to the worker pool.
func (a *app) record(ctx context.Context, display, count int, dir string) (*runManifest, error) {
	d, c, err := a.openCapturer(display)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	defer c.Close()

	m := &runManifest{
		RunID:    uuid.NewString(),
		Display:  d.Name(),
		Width:    c.Width(),
		Height:   c.Height(),
		Fastlane: c.Fastlane(),
		Started:  time.Now(),
	}
	runDir := filepath.Join(dir, m.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}

	logger := logging.WithRun(log, m.RunID)
	logger.Info("recording started", logging.KeyDisplay, m.Display, "frames", count, "dir", runDir)

	pool := workerpool.New(a.cfg.Workers, a.cfg.QueueSize)
	var images capture.ImagePool

	var pollErr error
	for i := 0; i < count; i++ {
		f, err := capture.Poll(ctx, c, a.cfg.PollInterval())
		if err != nil {
			pollErr = err
			break
		}
		img := images.Get(c.Width(), c.Height())
		if err := f.CopyTo(img); err != nil {
			pollErr = err
			break
		}

		path := filepath.Join(runDir, fmt.Sprintf("frame-%06d.png", i))
		task := func(context.Context) error {
			defer images.Put(img)
			return writePNG(path, img)
		}
		if err := pool.SubmitWait(ctx, task); err != nil {
			pollErr = err
			break
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	writeErr := pool.Shutdown(drainCtx)

	stats := pool.Stats()
	m.Frames = stats.Completed
	m.Failed = stats.Failed
	m.Duration = time.Since(m.Started).Round(time.Millisecond).String()
	if err := writeManifest(filepath.Join(runDir, "run.yaml"), m); err != nil {
		return nil, err
	}

	logger.Info("recording finished",
		"frames", m.Frames,
		"failed", m.Failed,
		logging.KeyDurationMs, time.Since(m.Started).Milliseconds(),
	)

	// An interrupt ends a recording early without failing it.
	if pollErr != nil && !errors.Is(pollErr, context.Canceled) {
		return m, fmt.Errorf("record %s: %w", m.Display, pollErr)
	}
	if writeErr != nil {
		return m, fmt.Errorf("write frames: %w", writeErr)
	}
	return m, nil
}

func writeManifest(path string, m *runManifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
