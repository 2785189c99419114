package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/deskcap/internal/capture"
)

type displayRow struct {
	Index       int    `json:"index" yaml:"index"`
	Name        string `json:"name" yaml:"name"`
	X           int    `json:"x" yaml:"x"`
	Y           int    `json:"y" yaml:"y"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	Orientation string `json:"orientation" yaml:"orientation"`
}

func (a *app) listCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List displays that support duplication",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.displayRows()
			if err != nil {
				return err
			}
			return writeRows(cmd.OutOrStdout(), format, rows)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func (a *app) displayRows() ([]displayRow, error) {
	all, err := capture.AllFrom(a.backend)
	if err != nil {
		return nil, err
	}
	defer capture.CloseAll(all)

	rows := make([]displayRow, 0, len(all))
	for i, d := range all {
		b := d.Bounds()
		rows = append(rows, displayRow{
			Index:       i,
			Name:        d.Name(),
			X:           b.Min.X,
			Y:           b.Min.Y,
			Width:       d.Width(),
			Height:      d.Height(),
			Orientation: d.Orientation().String(),
		})
	}
	return rows, nil
}

func writeRows(w io.Writer, format string, rows []displayRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(rows)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNAME\tPOSITION\tSIZE\tORIENTATION")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%d,%d\t%dx%d\t%s\n", r.Index, r.Name, r.X, r.Y, r.Width, r.Height, r.Orientation)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (use table, json or yaml)", format)
	}
}
