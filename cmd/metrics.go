package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/api"
	"github.com/darmiel/satellite/internal/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Collect metrics and send them to the hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show")
		detailed, _ := cmd.Flags().GetBool("detailed")
		defer f.Close()

		if f.Remote() {
			if !show {
				return remoteCommand(cmd, api.CommandMetrics, nil)
			}
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			res, correlation, err := cli.Metrics(cmd.Context())
			if err != nil {
				return logError(err, correlation, "failed to get metrics from satellite")
			}
			printMetrics(res.Metrics, detailed)
			return nil
		}

		if show {
			collector, err := f.Collector(cmd.Context())
			if err != nil {
				return err
			}
			printMetrics(collector.Collect(cmd.Context()), detailed)
			return nil
		}

		sat, err := f.Satellite(cmd.Context())
		if err != nil {
			return err
		}
		values, ok := sat.Publisher.Publish(cmd.Context())
		printMetrics(values, detailed)
		if !ok {
			log.Error().Msgf("%s metrics were not acknowledged by the hub", redCross)
			return fmt.Errorf("sending metrics failed")
		}
		log.Info().Msgf("%s sent %d metrics to %s", greenCheck, len(values), sat.Config.Hub.URL)
		return nil
	},
}

// printMetrics renders one row per metric. Nested values are only expanded with detailed.
func printMetrics(values map[string]any, detailed bool) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, name := range names {
		v := values[name]
		if d, ok := v.(metrics.Disk); ok {
			v = map[string]any{"total": d.Total, "used": d.Used, "free": d.Free, "percent": d.Percent}
		}
		nested, ok := v.(map[string]any)
		if !ok {
			t.AppendRow(table.Row{bold(name), fmt.Sprint(v)})
			continue
		}
		if !detailed {
			t.AppendRow(table.Row{bold(name), faint(fmt.Sprintf("%d values (--detailed)", len(nested)))})
			continue
		}
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{bold(name) + "." + k, fmt.Sprint(nested[k])})
		}
	}

	applyTableFormat(t)
	t.Render()
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().Bool("show", false, "only collect and print the metrics, do not send them")
	metricsCmd.Flags().Bool("detailed", false, "expand nested metrics such as memory and disk usage")
}
