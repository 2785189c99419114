package main

import (
	"fmt"
	"io"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"

	"github.com/breeze-rmm/deskcap/internal/capture"
	"github.com/breeze-rmm/deskcap/internal/dxgi"
	"github.com/breeze-rmm/deskcap/internal/logging"
)

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Report the host platform and whether duplication is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			h, err := host.InfoWithContext(cmd.Context())
			if err != nil {
				// gopsutil fills what it can; a partial report is still useful.
				log.Debug("host info incomplete", logging.KeyError, err)
			}
			if h != nil {
				fmt.Fprintf(out, "host:        %s\n", h.Hostname)
				fmt.Fprintf(out, "platform:    %s %s (%s)\n", h.Platform, h.PlatformVersion, h.KernelArch)
				fmt.Fprintf(out, "os:          %s, kernel %s\n", h.OS, h.KernelVersion)
			}
			if n, err := cpu.CountsWithContext(cmd.Context(), true); err == nil {
				fmt.Fprintf(out, "cpus:        %d\n", n)
			}

			a.reportDuplication(out)
			return nil
		},
	}
}

// reportDuplication lists the displays and tries a session on the first.
func (a *app) reportDuplication(out io.Writer) {
	all, err := capture.AllFrom(a.backend)
	if err != nil {
		fmt.Fprintf(out, "duplication: unavailable (%s)\n", dxgi.KindOf(err))
		log.Debug("enumeration failed", logging.KeyError, err)
		return
	}
	defer capture.CloseAll(all)

	fmt.Fprintf(out, "displays:    %d\n", len(all))
	if len(all) == 0 {
		fmt.Fprintln(out, "duplication: no display to test")
		return
	}

	c, err := capture.NewCapturer(all[0])
	if err != nil {
		fmt.Fprintf(out, "duplication: unavailable on %s (%s)\n", all[0].Name(), dxgi.KindOf(err))
		log.Debug("session failed", logging.KeyDisplay, all[0].Name(), logging.KeyError, err)
		return
	}
	defer c.Close()

	path := "staging"
	if c.Fastlane() {
		path = "fastlane"
	}
	fmt.Fprintf(out, "duplication: available on %s (%s path)\n", all[0].Name(), path)
}
