package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/report"
)

var (
	reportHTML bool
	reportCSV  bool
	reportOut  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export current snapshots as HTML or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if reportHTML && reportCSV {
			return eris.New("--html and --csv are mutually exclusive")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snapshots, err := st.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		events, err := st.ListUnnotifiedEvents(ctx)
		if err != nil {
			return err
		}

		rep := report.New(snapshots, events, nil)

		out := os.Stdout
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return eris.Wrapf(err, "create output file %s", reportOut)
			}
			defer f.Close()
			out = f
		}

		if reportCSV {
			err = rep.WriteCSV(out)
		} else {
			err = rep.WriteHTML(out)
		}
		if err != nil {
			return err
		}

		if reportOut != "" {
			zap.L().Info("report written",
				zap.String("path", reportOut),
				zap.Int("snapshots", len(snapshots)),
			)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "write HTML (default)")
	reportCmd.Flags().BoolVar(&reportCSV, "csv", false, "write CSV instead of HTML")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(reportCmd)
}
