package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "carecall",
	Short: "CareCall: 1:1 caregiver and patient video consultations",
	Long: "CareCall signaling server and headless call client.\n" +
		"Without a subcommand the signaling server is started.",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run signaling server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// Execute - ошибку уже печатает cobra
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
