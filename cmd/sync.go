package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/api"
	"github.com/darmiel/satellite/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push datasets to the hub",
	Long: `Collects every dataset of this satellite type and sends it to the hub in batches.
A checkpoint only moves once the hub acknowledged all batches of a dataset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		only, _ := cmd.Flags().GetStringSlice("dataset")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		defer f.Close()

		if f.Remote() {
			if len(only) > 0 || dryRun {
				log.Warn().Msg("--dataset and --dry-run only apply to local runs")
			}
			return remoteCommand(cmd, api.CommandSync, nil)
		}

		sat, err := f.Satellite(cmd.Context())
		if err != nil {
			return err
		}
		if !dryRun {
			sat.Registration.AutoRegister(cmd.Context())
		}

		report, err := sat.Syncer.Run(cmd.Context(), syncer.RunOptions{Only: only, DryRun: dryRun})
		if report.RunID != "" {
			printReport(report)
		}
		if err != nil && !errors.Is(err, syncer.ErrFailed) {
			return err
		}

		msg := fmt.Sprintf("sync %s: %s", report.RunID, report.Outcome)
		switch report.Outcome {
		case syncer.OutcomeSuccess:
			log.Info().Msgf("%s %s", greenCheck, msg)
		case syncer.OutcomePartial:
			log.Warn().Msgf("%s %s", yellowDot, msg)
		default:
			log.Error().Msgf("%s %s", redCross, msg)
		}
		return err
	},
}

func printReport(report syncer.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Dataset", "Status", "Records", "Batches", "Updates", "Checkpoint", "Error"})

	for _, res := range report.Results {
		checkpoint := faint("-")
		if res.Checkpoint != nil {
			checkpoint = res.Checkpoint.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{
			bold(res.Dataset),
			statusIcon(string(res.Status)) + " " + string(res.Status),
			strconv.Itoa(res.Records),
			strconv.Itoa(res.Batches),
			strconv.Itoa(res.Updates),
			checkpoint,
			truncate(res.Error, 48),
		})
	}

	applyTableFormat(t)
	t.Render()
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSlice("dataset", nil, "only sync the named datasets (repeatable)")
	syncCmd.Flags().Bool("dry-run", false, "collect the datasets without sending them")
}
