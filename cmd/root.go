// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/openecg/ecgmon/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ecgmon",
	Short: "Single-lead ECG recorder and heart-rate monitor",
	Long:  `A real-time ECG processing tool: conditions the raw signal, detects heartbeats and reports a running heart-rate estimate.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().Float64P("rate", "r", 1000, "raw sample rate in Hz")
	rootCmd.PersistentFlags().IntP("decimation", "n", 8, "decimation factor")
	rootCmd.PersistentFlags().StringP("source", "s", "sim", "sample source (sim or serial)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("sample_rate", rootCmd.PersistentFlags().Lookup("rate"))
	viper.BindPFlag("decimation_factor", rootCmd.PersistentFlags().Lookup("decimation"))
	viper.BindPFlag("source", rootCmd.PersistentFlags().Lookup("source"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
