package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/tasks"
)

var tasksLogsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "See logs of a background task",
	Long:  `Prints the in-memory log buffer of a task, e.g. the per-dataset output of the last sync runs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name == "" {
			return fmt.Errorf("task name cannot be empty")
		}
		tail, _ := cmd.Flags().GetInt("tail")

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving logs for task '%s'...", name)
		logs, err := cli.GetTaskLogs(cmd.Context(), name)
		if err != nil {
			return logError(err, "", "retrieving logs of task "+name)
		}
		if tail > 0 && len(logs) > tail {
			logs = logs[len(logs)-tail:]
		}

		log.Info().Msgf("Logs for task '%s' (%d entries):", name, len(logs))
		fmt.Println(faint("----------------------------------------"))
		for _, entry := range logs {
			fmt.Printf("%s | %s | %s\n", entry.Time.Format("2006-01-02 15:04:05"), levelTag(entry), entry.Message)
		}
		return nil
	},
}

func levelTag(entry tasks.LogEntry) string {
	switch entry.Level {
	case "info":
		return color.GreenString("inf")
	case "warn":
		return color.YellowString("wrn")
	case "error":
		return color.RedString("err")
	case "debug":
		return faint("dbg")
	default:
		return entry.Level
	}
}

func init() {
	tasksCmd.AddCommand(tasksLogsCmd)

	tasksLogsCmd.Flags().Int("tail", 0, "only show the last N entries")
}
