package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Displays anubis's version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Overrides the root pre-run: version shouldn't require a valid
		// --root-dir.
		return nil
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
