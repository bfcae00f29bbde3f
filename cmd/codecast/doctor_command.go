package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codecast/internal/router"
)

func newDoctorCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Probe every configured backend and report health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cmdCtx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			snapshots := app.router.CheckAll(cmd.Context())

			if cmdCtx.jsonOutput() {
				return writeJSON(cmd, doctorView(snapshots))
			}

			rows := make([][]string, 0, len(snapshots))
			for _, h := range snapshots {
				rows = append(rows, []string{
					h.Name,
					string(h.Kind),
					availability(h),
					fmt.Sprintf("%.0f%%", h.SuccessRatio*100),
					formatLatency(h.RecentLatency),
					h.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Backend", "Kind", "Status", "Success", "Latency", "Last Error"},
				rows, 3, 4))

			fmt.Fprintf(cmd.OutOrStdout(), "\nMode: %s", app.cfg.AI.Mode)
			if app.cfg.AI.PrivacyMode {
				fmt.Fprint(cmd.OutOrStdout(), " (privacy mode, cloud disabled)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

type doctorEntry struct {
	Name                string  `json:"name"`
	Kind                string  `json:"kind"`
	Available           bool    `json:"available"`
	SuccessRatio        float64 `json:"success_ratio"`
	RecentLatencyMillis int64   `json:"recent_latency_ms"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	CoolingDown         bool    `json:"cooling_down"`
	CooldownUntil       string  `json:"cooldown_until,omitempty"`
	LastError           string  `json:"last_error,omitempty"`
}

func doctorView(snapshots []router.Health) []doctorEntry {
	entries := make([]doctorEntry, 0, len(snapshots))
	for _, h := range snapshots {
		entry := doctorEntry{
			Name:                h.Name,
			Kind:                string(h.Kind),
			Available:           h.Available,
			SuccessRatio:        h.SuccessRatio,
			RecentLatencyMillis: h.RecentLatency.Milliseconds(),
			ConsecutiveFailures: h.ConsecutiveFailures,
			CoolingDown:         h.CoolingDown,
			LastError:           h.LastError,
		}
		if h.CoolingDown {
			entry.CooldownUntil = h.CooldownUntil.Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}
	return entries
}

func availability(h router.Health) string {
	switch {
	case h.CoolingDown:
		return fmt.Sprintf("cooling down until %s", h.CooldownUntil.Local().Format(time.Kitchen))
	case h.Available:
		return "ok"
	default:
		return "unavailable"
	}
}

func formatLatency(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
