package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/cmd/monoclock/backend"
	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/probe"
)

var defaultCheckBackends = []string{backend.Default, backend.Runtime, backend.Platform}

var checkCmd = &cobra.Command{
	Use:   "check [backend...]",
	Short: "Check the elapsed-time contract against live clocks",
	Long: `check runs the probe against each named backend (default, runtime and
platform when none are given): non-negative and non-decreasing reads, agreement
with a sleep, resolution, a busy-loop bound and concurrent first use.
It exits non-zero when any check fails.`,
	RunE: runCheck,
}

func init() {
	d := probe.DefaultOptions()
	checkCmd.Flags().Int("samples", d.Samples, "reads per sampling check")
	checkCmd.Flags().Duration("sleep", d.Sleep, "sleep length for the linearity check")
	checkCmd.Flags().Duration("tolerance", d.Tolerance, "allowed oversleep for the linearity check")
	checkCmd.Flags().Int("workers", d.Workers, "goroutines racing the first read")
	checkCmd.Flags().Duration("busy-loop", d.BusyLoop, "busy-loop length")

	viper.BindPFlag("check.samples", checkCmd.Flags().Lookup("samples"))
	viper.BindPFlag("check.sleep", checkCmd.Flags().Lookup("sleep"))
	viper.BindPFlag("check.tolerance", checkCmd.Flags().Lookup("tolerance"))
	viper.BindPFlag("check.workers", checkCmd.Flags().Lookup("workers"))
	viper.BindPFlag("check.busy_loop", checkCmd.Flags().Lookup("busy-loop"))
}

func checkOptions() probe.Options {
	return probe.Options{
		Samples:   viper.GetInt("check.samples"),
		Sleep:     viper.GetDuration("check.sleep"),
		Tolerance: viper.GetDuration("check.tolerance"),
		Workers:   viper.GetInt("check.workers"),
		BusyLoop:  viper.GetDuration("check.busy_loop"),
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		names = defaultCheckBackends
	}
	for _, name := range names {
		if !backend.Valid(name) {
			return fmt.Errorf("%w: %s", backend.ErrUnknown, name)
		}
	}

	logger := log.Logger().Named("check")
	opts := checkOptions()
	reports := make([]*probe.Report, 0, len(names))
	failed := 0

	for _, name := range names {
		b, err := backend.Open(name)
		if err != nil {
			return err
		}
		report, err := probe.Run(cmd.Context(), b.Target(), opts)
		b.Close()
		if err != nil {
			return fmt.Errorf("checking %s: %w", name, err)
		}
		if !report.Passed() {
			failed++
		}
		logger.Info("Backend checked", zap.String("backend", name), zap.Bool("passed", report.Passed()), zap.String("report", report.ID))
		reports = append(reports, report)
	}

	err := render(cmd.OutOrStdout(), reports, func(table *tablewriter.Table) {
		table.Header("Backend", "Check", "Result", "Detail", "Took")
		for _, report := range reports {
			for _, res := range report.Results {
				table.Append([]string{report.Target, res.Check, passFail(res.Passed), res.Detail, formatDuration(res.Duration)})
			}
		}
	})
	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d backends failed their checks", failed, len(reports))
	}
	return nil
}
