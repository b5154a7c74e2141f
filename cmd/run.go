package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runNoEmail bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full polling cycle across all platforms",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initMonitor(ctx, runNoEmail)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Engine.RunCycle(ctx, env.Items)
		if err != nil {
			return eris.Wrap(err, "run cycle")
		}

		zap.L().Info("cycle summary",
			zap.String("run_id", summary.RunID),
			zap.Int("items_checked", summary.ItemsChecked),
			zap.Int("events", summary.EventCount),
			zap.Int("failures", len(summary.Failures)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoEmail, "no-email", false, "skip email notifications for this cycle")
	rootCmd.AddCommand(runCmd)
}
