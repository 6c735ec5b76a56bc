package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/health"
	"github.com/darmiel/satellite/pkg/hub"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the health checks of this satellite",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, _ := cmd.Flags().GetBool("hub")
		defer f.Close()

		if f.Remote() {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			res, correlation, err := cli.Health(cmd.Context())
			if err != nil {
				return logError(err, correlation, "failed to get health from satellite")
			}
			printChecks(res.Satellite, res.Status, res.Checks)
			return nil
		}

		if !report {
			checker, err := f.Checker(cmd.Context())
			if err != nil {
				return err
			}
			p := checker.Run(cmd.Context())
			printChecks(p.SatelliteName, p.Status, p.Checks)
			return nil
		}

		sat, err := f.Satellite(cmd.Context())
		if err != nil {
			return err
		}
		p := sat.Health.Run(cmd.Context())
		printChecks(p.SatelliteName, p.Status, p.Checks)
		if err := sat.Health.Remember(cmd.Context(), p); err != nil {
			log.Warn().Err(err).Msg("failed to store health report")
		}

		answer, err := sat.Hub.HealthCheck(cmd.Context(), p)
		if err != nil {
			log.Error().Err(err).Msgf("%s hub did not accept the health report", redCross)
			return err
		}
		msg := answer.Status
		if answer.Message != "" {
			msg += " (" + answer.Message + ")"
		}
		log.Info().Msgf("%s hub answered: %s", greenCheck, msg)
		return nil
	},
}

func printChecks(name, status string, checks map[string]hub.Check) {
	fmt.Printf("\n%s %s: %s\n", statusIcon(status), bold(name), status)

	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Check", "Status", "Message"})
	for _, n := range names {
		c := checks[n]
		t.AppendRow(table.Row{bold(n), statusIcon(c.Status) + " " + c.Status, c.Message})
	}
	applyTableFormat(t)
	t.Render()

	if status != health.StatusHealthy {
		log.Warn().Msgf("satellite is %s", status)
	}
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().Bool("hub", false, "also report the result to the hub")
}
