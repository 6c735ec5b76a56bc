package cmd

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all background tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving tasks...")
		tasks, err := cli.ListTasks(cmd.Context())
		if err != nil {
			return logError(err, "", "listing tasks")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Every", "State", "Last Run", "Next Run", "Last Result", "Skipped"})

		for _, task := range tasks {
			state := "idle"
			if task.Running {
				state = color.BlueString("running")
			}

			lastRun := timeAgo(task.LastRun)

			nextRun := "n/a"
			if !task.NextRun.IsZero() {
				nextRun = "in " + time.Until(task.NextRun).Round(time.Second).String()
			}

			every := "on demand"
			if task.IntervalSeconds > 0 {
				every = (time.Duration(task.IntervalSeconds) * time.Second).String()
			}

			result := faint("-")
			if task.LastResult != "" {
				result = statusIcon(task.LastResult) + " " + truncate(task.LastResult, 40)
			}

			t.AppendRow(table.Row{
				color.New(color.Bold).Sprint(task.Name),
				every,
				state,
				lastRun,
				nextRun,
				result,
				task.Skipped,
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
}
