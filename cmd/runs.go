package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"b7/config"
	"b7/rundb"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded brute runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(flagConfig, flagProfile)
	if err != nil {
		return err
	}

	db, err := rundb.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening run database: %w", err)
	}
	defer db.Close()

	recs, err := db.ListRuns()
	if err != nil {
		return err
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartTime.After(recs[j].StartTime)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTARGET\tSOLVER\tSTATUS\tSTARTED\tCOUNT\tSTDIN")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%q\n",
			rec.UUID[:8], rec.Target, rec.Solver, rec.Status,
			rec.StartTime.Format(time.DateTime), rec.InstCount, rec.Stdin)
	}
	return w.Flush()
}
