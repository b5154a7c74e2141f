package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/notify"
	"github.com/dakiwatch/dakiwatch/internal/report"
)

var dailyReportCmd = &cobra.Command{
	Use:   "daily-report",
	Short: "Email the current snapshot table to the configured recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !cfg.Email.Enabled {
			return eris.New("email is disabled in config")
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

		var body bytes.Buffer
		if err := report.New(snapshots, nil, nil).WriteHTML(&body); err != nil {
			return err
		}

		subject := fmt.Sprintf("dakiwatch daily report %s", time.Now().Format("2006-01-02"))
		n := notify.NewEmail(cfg.Email)
		if err := n.Send(ctx, subject, body.Bytes()); err != nil {
			return err
		}

		zap.L().Info("daily report sent",
			zap.Int("snapshots", len(snapshots)),
			zap.Strings("to", cfg.Email.To),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dailyReportCmd)
}
