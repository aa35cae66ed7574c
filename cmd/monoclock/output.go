package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// render writes v in the configured output format. Table output is built by
// fill, the structured formats encode v as is.
func render(w io.Writer, v any, fill func(table *tablewriter.Table)) error {
	switch viper.GetString("output") {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		table := tablewriter.NewWriter(w)
		fill(table)
		return table.Render()
	}
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.9f", s)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
