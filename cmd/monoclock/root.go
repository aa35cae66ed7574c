package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/clock"
	"go.sazak.io/monoclock/internal/log"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
	logFile      string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "monoclock",
	Short: "Inspect and benchmark monotonic elapsed-time clocks",
	Long: `monoclock measures the process's monotonic elapsed-time clocks: the
package-level clock, the Go runtime counter, the platform timer facility and,
on Linux, the kernel's bpf_ktime_get_ns(). It can check their contract, time
their reads and serve them over HTTP.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.monoclock/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file, rotated")

	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(backendsCmd, checkCmd, benchCmd, serveCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		// Search config in home directory with name ".monoclock/config" (without extension)
		viper.AddConfigPath(filepath.Join(home, ".monoclock"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("monoclock")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}

// setup brings up logging once flags, config and environment are merged.
func setup(cmd *cobra.Command, _ []string) error {
	switch format := viper.GetString("output"); format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	opts := log.GetDefaultLogOpts()
	opts.Level = viper.GetString("log.level")
	if name := viper.GetString("log.file"); name != "" {
		opts.File = true
		opts.FileName = name
	}
	if err := log.SetupZapLogger(opts); err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	// The logger outlives a single command when commands run in-process.
	if err := log.Logger().SetLevel(opts.Level); err != nil {
		return err
	}
	clock.SetLogger(log.Logger().Named("clock").Logger)

	log.Logger().Debug("Configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("config", viper.ConfigFileUsed()),
		zap.String("output", viper.GetString("output")))
	return nil
}
