package main

import (
	"github.com/spf13/cobra"

	"client_go/internal/config"
)

var (
	version = "dev"

	cfg *config.Config

	profileFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "zchat",
	Short: "Terminal client for zChat",
	Long: `zchat talks to a zChat backend over REST and WebSocket.
Run without a subcommand to open the full-screen client.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if profileFlag != "" {
			c.Profile = profileFlag
		}
		if logLevelFlag != "" {
			c.LogLevel = logLevelFlag
		}
		cfg = c
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "session profile (default $ZCHAT_PROFILE or \"default\")")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error")
}
