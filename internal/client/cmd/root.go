package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           `peer-chat`,
	Long:          `peer-chat is a peer to peer chat application`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides PEERCHAT_LOG_LEVEL)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(rendezvousCmd)
	rootCmd.AddCommand(devicesCmd)
}

// level picks the --log-level flag over the configured level.
func level(configured string) string {
	if logLevel != "" {
		return logLevel
	}
	return configured
}
