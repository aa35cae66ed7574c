package main

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"go.sazak.io/monoclock/cmd/monoclock/backend"
)

type backendRow struct {
	backend.Info `yaml:",inline"`
	Seconds      float64 `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	Error        string  `json:"error,omitempty" yaml:"error,omitempty"`
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List clock backends and their health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := make([]backendRow, 0, len(backend.Names))
		for _, name := range backend.Names {
			b, err := backend.Open(name)
			if err != nil {
				rows = append(rows, backendRow{Info: backend.Info{Name: name}, Error: err.Error()})
				continue
			}
			rows = append(rows, backendRow{Info: b.Info(), Seconds: b.Elapsed()})
			b.Close()
		}

		return render(cmd.OutOrStdout(), rows, func(table *tablewriter.Table) {
			table.Header("Backend", "Source", "Period", "Resolution", "Degraded", "Elapsed (s)")
			for _, r := range rows {
				if r.Error != "" {
					table.Append([]string{r.Name, "unavailable", "-", "-", "-", r.Error})
					continue
				}
				table.Append([]string{
					r.Name,
					r.Source,
					r.Period,
					r.Resolution.String(),
					yesNo(r.Degraded),
					formatSeconds(r.Seconds),
				})
			}
		})
	},
}
