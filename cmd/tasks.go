package cmd

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the background tasks of a running satellite",
	Long:  `List, trigger and read the logs of the scheduled tasks. Requires --server.`,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
