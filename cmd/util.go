package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/pkg/client"
)

var (
	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✘")
	yellowDot  = color.YellowString("●")

	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

func applyTableFormat(t table.Writer) {
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Options.SeparateRows = false
}

// logError logs err together with the correlation id of the failed request and returns it.
func logError(err error, correlation, msg string) error {
	ev := log.Error().Err(err)
	if correlation != "" {
		ev = ev.Str("correlation_id", correlation)
	}
	var apiErr client.APIError
	if errors.As(err, &apiErr) && apiErr.CorrelationID != "" && correlation == "" {
		ev = ev.Str("correlation_id", apiErr.CorrelationID)
	}
	if errors.Is(err, client.ErrUnauthorized) {
		ev.Msgf("%s %s (check --api-key)", redCross, msg)
	} else {
		ev.Msgf("%s %s", redCross, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// statusIcon renders a health or sync status.
func statusIcon(status string) string {
	switch status {
	case "healthy", "success", "synced", "ok":
		return greenCheck
	case "warning", "degraded", "partial", "skipped", "dry_run":
		return yellowDot
	default:
		return redCross
	}
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
