package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/cmd/monoclock/backend"
	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/probe"
)

const defaultBenchPlan = "default:1000000,runtime:1000000,platform:1000000"

type benchRun struct {
	RunID   string              `json:"run_id" yaml:"run_id"`
	Results []probe.BenchResult `json:"results" yaml:"results"`
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time reads of each backend from concurrent workers",
	Args:  cobra.NoArgs,
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().String("plan", defaultBenchPlan, "reads per backend (e.g. runtime:100000,platform:50000)")
	benchCmd.Flags().Int("workers", runtime.NumCPU(), "number of reading goroutines per backend")
	benchCmd.Flags().Uint64("sample-every", 1024, "time every n-th read individually, 0 disables")

	viper.BindPFlag("bench.plan", benchCmd.Flags().Lookup("plan"))
	viper.BindPFlag("bench.workers", benchCmd.Flags().Lookup("workers"))
	viper.BindPFlag("bench.sample_every", benchCmd.Flags().Lookup("sample-every"))
}

func runBench(cmd *cobra.Command, _ []string) error {
	plan, err := parseBenchPlan(viper.GetString("bench.plan"))
	if err != nil {
		return fmt.Errorf("failed to parse bench plan: %w", err)
	}
	if len(plan) == 0 {
		return errors.New("bench plan is empty")
	}

	run := benchRun{RunID: uuid.New().String()}
	logger := log.Logger().Named("bench").With(zap.String("run", run.RunID))

	for _, entry := range plan {
		b, err := backend.Open(entry.Backend)
		if err != nil {
			return err
		}
		logger.Info("Benchmarking backend", zap.String("backend", entry.Backend), zap.Uint64("calls", entry.Calls))

		res, err := probe.Bench(cmd.Context(), b.Target(), probe.BenchOptions{
			Calls:       entry.Calls,
			Workers:     viper.GetInt("bench.workers"),
			SampleEvery: viper.GetUint64("bench.sample_every"),
		})
		b.Close()
		run.Results = append(run.Results, res)
		if err != nil {
			logger.Warn("Bench interrupted", zap.Error(err))
			break
		}
	}

	return render(cmd.OutOrStdout(), run, func(table *tablewriter.Table) {
		table.Header("Backend", "Calls", "Workers", "ns/call", "Slowest sampled", "Regressions", "Wall")
		for _, r := range run.Results {
			table.Append([]string{
				r.Target,
				fmt.Sprintf("%d", r.Calls),
				fmt.Sprintf("%d", r.Workers),
				fmt.Sprintf("%.2f", r.NsPerCall),
				r.SlowestCall.String(),
				fmt.Sprintf("%d", r.Regressions),
				formatDuration(r.Wall),
			})
		}
	})
}
