package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tasksTriggerCmd = &cobra.Command{
	Use:   "trigger NAME",
	Short: "Manually trigger a background task",
	Long:  `Runs the task through the command endpoint, e.g. 'sync' runs the satellite:sync command.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name == "" {
			return fmt.Errorf("task name cannot be empty")
		}
		if err := remoteCommand(cmd, "satellite:"+name, nil); err != nil {
			return err
		}
		log.Info().Msgf("Run '%s' to see progress.", color.CyanString("satellite tasks logs "+name))
		return nil
	},
}

// remoteCommand sends an allow-listed command to the satellite at --server.
func remoteCommand(cmd *cobra.Command, command string, params map[string]any) error {
	cli, err := f.GetClient()
	if err != nil {
		return err
	}

	log.Debug().Msgf("Sending command '%s'...", command)
	res, correlation, err := cli.Command(cmd.Context(), command, params)
	if err != nil {
		return logError(err, correlation, "command "+command+" failed")
	}

	msg := fmt.Sprintf("%s %s: %s", greenCheck, color.New(color.Bold).Sprint(command), res.Status)
	if res.Output != "" {
		msg += " (" + res.Output + ")"
	}
	log.Info().Msg(msg)
	return nil
}

func init() {
	tasksCmd.AddCommand(tasksTriggerCmd)
}
