// Package cmd wires the b7 command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagProfile string
	flagDynPath string
	flagSolver  string
	flagTimeout string
	flagWorkers int
	flagNoUI    bool
	flagDebug   bool
	flagArgv    bool
	flagStdin   bool
)

var rootCmd = &cobra.Command{
	Use:   "b7",
	Short: "Brute force program inputs by instruction counting",
	Long: `b7 recovers the command-line arguments and stdin that steer a target
binary toward its success path. It repeatedly runs the target under
instrumentation, measures how many instructions each candidate input makes
the target execute, and keeps the candidates that maximize that count.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "configuration file (default ~/.b7/b7.ini)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "configuration profile section")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose diagnostics")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
