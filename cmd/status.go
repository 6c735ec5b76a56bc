package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registration, sync and metrics state",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer f.Close()

		if f.Remote() {
			cli, err := f.GetClient()
			if err != nil {
				return err
			}
			res, correlation, err := cli.Status(cmd.Context())
			if err != nil {
				return logError(err, correlation, "failed to get status from satellite")
			}
			printStatus(res)
			return nil
		}

		sat, err := f.Satellite(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		cfg := sat.Config

		rec, err := sat.Registration.State(ctx)
		if err != nil {
			return err
		}
		last, err := sat.Syncer.LastReport(ctx)
		if err != nil {
			return err
		}
		checkpoints, err := sat.Syncer.Checkpoints(ctx)
		if err != nil {
			return err
		}
		ms := api.MetricsStatus{Enabled: cfg.Metrics.Enabled, Interval: cfg.Metrics.IntervalSeconds}
		if t, err := sat.Publisher.LastSent(ctx); err == nil && !t.IsZero() {
			ms.LastSent = &t
		}

		res := &api.StatusResponse{
			Registration: rec,
			Sync: api.SyncStatus{
				Enabled:     cfg.Sync.Enabled,
				Interval:    cfg.Sync.IntervalSeconds,
				LastSync:    last,
				Checkpoints: checkpoints,
			},
			Metrics:   ms,
			Timestamp: time.Now(),
		}
		res.Satellite.Name = cfg.Satellite.Name
		res.Satellite.Type = cfg.Satellite.Type
		res.Satellite.Version = cfg.Satellite.Version
		res.Satellite.URL = cfg.Satellite.URL
		printStatus(res)
		return nil
	},
}

func printStatus(res *api.StatusResponse) {
	fmt.Println(bold("\n── Satellite ──"))
	fmt.Printf("  %s:    %s (%s)\n", faint("Name"), res.Satellite.Name, res.Satellite.Type)
	fmt.Printf("  %s: %s\n", faint("Version"), res.Satellite.Version)
	fmt.Printf("  %s:     %s\n", faint("URL"), res.Satellite.URL)
	if !res.Uptime.Since.IsZero() {
		fmt.Printf("  %s:  %s\n", faint("Uptime"), (time.Duration(res.Uptime.Duration) * time.Second).String())
	}

	fmt.Println(bold("\n── Registration ──"))
	switch rec := res.Registration; {
	case rec == nil || rec.LastRegisteredAt == nil:
		fmt.Printf("  %s not registered\n", redCross)
	default:
		fmt.Printf("  %s %s %s\n", greenCheck, rec.SatelliteID, faint(timeAgo(*rec.LastRegisteredAt)))
	}

	fmt.Println(bold("\n── Sync ──"))
	fmt.Printf("  %s: %v (every %ds)\n", faint("Enabled"), res.Sync.Enabled, res.Sync.Interval)
	if last := res.Sync.LastSync; last != nil {
		fmt.Printf("  %s:    %s %s %s\n", faint("Last"), statusIcon(string(last.Outcome)), last.Outcome,
			faint(timeAgo(last.FinishedAt)))
	} else {
		fmt.Printf("  %s:    never\n", faint("Last"))
	}
	if len(res.Sync.Checkpoints) > 0 {
		names := make([]string, 0, len(res.Sync.Checkpoints))
		for n := range res.Sync.Checkpoints {
			names = append(names, n)
		}
		sort.Strings(names)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Dataset", "Checkpoint"})
		for _, n := range names {
			cp := res.Sync.Checkpoints[n]
			t.AppendRow(table.Row{bold(n), cp.Format(time.RFC3339) + " " + faint(timeAgo(cp))})
		}
		applyTableFormat(t)
		t.Render()
	}

	fmt.Println(bold("\n── Metrics ──"))
	fmt.Printf("  %s: %v (every %ds)\n", faint("Enabled"), res.Metrics.Enabled, res.Metrics.Interval)
	if res.Metrics.LastSent != nil {
		fmt.Printf("  %s:    %s\n", faint("Last"), timeAgo(*res.Metrics.LastSent))
	} else {
		fmt.Printf("  %s:    never\n", faint("Last"))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
