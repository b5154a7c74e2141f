package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/notify"
)

var testEmailCmd = &cobra.Command{
	Use:   "test-email",
	Short: "Send a test message to verify SMTP settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Email.Enabled {
			return eris.New("email is disabled in config")
		}

		n := notify.NewEmail(cfg.Email)
		if err := n.SendTest(cmd.Context()); err != nil {
			return err
		}

		zap.L().Info("test email sent",
			zap.Strings("to", cfg.Email.To),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testEmailCmd)
}
