package cmd

import (
	"github.com/krowlandson/AzureStateManager/internal/message"
	"github.com/krowlandson/AzureStateManager/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of AzureStateManager",
	Run: func(cmd *cobra.Command, args []string) {
		message.Info(version.FullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
