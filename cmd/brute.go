package cmd

import (
	"fmt"
	"os"
	"time"

	"b7/brute"
	"b7/config"
	"b7/log"
	"b7/proc"
	"b7/rundb"
	"b7/solver"
	"b7/tui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var bruteCmd = &cobra.Command{
	Use:   "brute <target>",
	Short: "Search for the inputs that drive a target down its success path",
	Args:  cobra.ExactArgs(1),
	RunE:  runBrute,
}

func init() {
	bruteCmd.Flags().StringVar(&flagDynPath, "dynpath", "", "root of the DynamoRIO toolchain")
	bruteCmd.Flags().StringVar(&flagSolver, "solver", "", "instruction counter: dynamorio or perf")
	bruteCmd.Flags().StringVar(&flagTimeout, "timeout", "", "per-candidate timeout for the perf solver (e.g. 5s); dynamorio always uses 5s")
	bruteCmd.Flags().IntVar(&flagWorkers, "workers", 0, "concurrent measurement workers")
	bruteCmd.Flags().BoolVar(&flagNoUI, "no-ui", false, "disable the terminal UI")
	bruteCmd.Flags().BoolVar(&flagArgv, "argv", false, "brute the argument vector")
	bruteCmd.Flags().BoolVar(&flagStdin, "stdin", true, "brute stdin")

	rootCmd.AddCommand(bruteCmd)
}

func runBrute(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := config.LoadConfig(flagConfig, flagProfile)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := log.NewLogger(cfg.LogsPath)
	if err != nil {
		return fmt.Errorf("opening logs: %w", err)
	}
	defer logger.Close()
	proc.Waiter().SetLogger(logger)

	db, err := rundb.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening run database: %w", err)
	}
	defer db.Close()

	osname, osversion, arch, ncpus := config.GetSystemInfo()
	logger.Info("b7 on %s %s (%s), %d cpus", osname, osversion, arch, ncpus)
	logger.Info("target %s, solver %s, %d workers", target, cfg.Solver, cfg.MaxWorkers)

	var counter solver.InstCounter
	switch cfg.Solver {
	case "perf":
		counter = solver.PerfSolver{Timeout: cfg.Timeout}
	default:
		counter = solver.DynamorioSolver{}
	}

	var ui tui.UI
	if cfg.DisableUI {
		ui = tui.NewEnvUI(log.StdoutLogger{})
	} else {
		bar := tui.NewBarUI()
		bar.SetInterruptHandler(func() {
			logger.Warn("interrupted")
			os.Exit(1)
		})
		if err := bar.Start(); err != nil {
			return err
		}
		ui = bar
	}
	defer ui.Close()

	runID := uuid.NewString()
	rec := &rundb.RunRecord{
		UUID:      runID,
		Target:    target,
		Solver:    cfg.Solver,
		StartTime: time.Now(),
	}
	if err := db.StartRun(rec); err != nil {
		return err
	}

	res, err := brute.Run(brute.Options{
		Path:       target,
		ArgvBrute:  cfg.ArgvBrute,
		StdinBrute: cfg.StdinBrute,
		Solver:     counter,
		UI:         ui,
		Logger:     logger,
		Vars:       cfg.Vars,
		Workers:    cfg.MaxWorkers,
	})
	if err != nil {
		db.FinishRun(runID, rundb.RunStatusFailed, nil, "", 0, time.Now())
		logger.Error("search failed: %v", err)
		return err
	}

	if err := db.FinishRun(runID, rundb.RunStatusSuccess, res.Argv, res.Stdin, res.InstCount, time.Now()); err != nil {
		logger.Error("recording run: %v", err)
	}
	logger.WriteSummary(target, res.Tries, res.InstCount, res.Duration)

	fmt.Printf("run %s finished in %s (%d candidates)\n", runID, res.Duration.Round(time.Millisecond), res.Tries)
	if len(res.Argv) > 0 {
		fmt.Printf("argv:  %q\n", res.Argv)
	}
	fmt.Printf("stdin: %q\n", res.Stdin)
	return nil
}

// applyFlags layers explicitly-set command-line flags over the loaded
// configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("dynpath") {
		cfg.DynPath = flagDynPath
		cfg.Vars["dynpath"] = flagDynPath
	}
	if cmd.Flags().Changed("solver") {
		cfg.Solver = flagSolver
	}
	if cmd.Flags().Changed("timeout") {
		if d, err := time.ParseDuration(flagTimeout); err == nil {
			cfg.Timeout = d
		}
	}
	if cmd.Flags().Changed("workers") {
		cfg.MaxWorkers = flagWorkers
	}
	if cmd.Flags().Changed("no-ui") {
		cfg.DisableUI = flagNoUI
	}
	if cmd.Flags().Changed("argv") {
		cfg.ArgvBrute = flagArgv
	}
	if cmd.Flags().Changed("stdin") {
		cfg.StdinBrute = flagStdin
	}
	if flagDebug {
		cfg.Debug = true
	}
}
