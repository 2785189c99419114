package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/deskcap/internal/capture"
	"github.com/breeze-rmm/deskcap/internal/config"
	"github.com/breeze-rmm/deskcap/internal/dxgi"
	"github.com/breeze-rmm/deskcap/internal/logging"
)

var version = "0.1.0"

var log = logging.L("cli")

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile  string
	logLevel string

	cfg     *config.Config
	backend dxgi.Backend
	logFile io.Closer
}

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr, dxgi.DefaultBackend); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs one command line against backend.
func execute(args []string, stdout, stderr io.Writer, backend dxgi.Backend) error {
	a := &app{backend: backend}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "deskcap",
		Short:             "Desktop Duplication frame capture",
		Long:              `deskcap - capture frames from Windows displays through DXGI Desktop Duplication`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is <user config dir>/deskcap/deskcap.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		a.listCmd(),
		a.grabCmd(),
		a.recordCmd(),
		a.benchCmd(),
		a.infoCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskcap v%s\n", version)
		},
	}
}

// setup loads and validates the config and installs the log handler.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	result := cfg.ValidateTiered()
	if result.HasFatals() {
		return fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}

	var output io.Writer = cmd.ErrOrStderr()
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			return err
		}
		a.logFile = rw
		output = io.MultiWriter(output, rw)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)

	for _, w := range result.Warnings {
		log.Warn("config validation", logging.KeyError, w)
	}
	a.cfg = cfg
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// openDisplay returns display index. The other enumerated displays are
// closed.
func (a *app) openDisplay(index int) (*capture.Display, error) {
	all, err := capture.AllFrom(a.backend)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(all) {
		capture.CloseAll(all)
		return nil, &dxgi.Error{
			Op:   "open display",
			Kind: capture.NotFound,
			Err:  fmt.Errorf("display %d of %d", index, len(all)),
		}
	}
	d := all[index]
	all[index] = nil
	for _, other := range all {
		if other != nil {
			other.Close()
		}
	}
	return d, nil
}

// openCapturer opens display index and a session on it.
func (a *app) openCapturer(index int) (*capture.Display, *capture.Capturer, error) {
	d, err := a.openDisplay(index)
	if err != nil {
		return nil, nil, err
	}
	c, err := capture.NewCapturer(d)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("open capture session on %s: %w", d.Name(), err)
	}
	log.Debug("capture session ready", logging.KeyDisplay, d.Name(), "fastlane", c.Fastlane())
	return d, c, nil
}
