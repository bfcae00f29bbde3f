package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"codecast/internal/fingerprint"
	"codecast/internal/services"
)

func newCacheCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the explanation cache",
	}
	cmd.AddCommand(newCacheListCommand(cmdCtx))
	cmd.AddCommand(newCacheStatsCommand(cmdCtx))
	cmd.AddCommand(newCacheInvalidateCommand(cmdCtx))
	cmd.AddCommand(newCacheClearCommand(cmdCtx))
	return cmd
}

func requireCache(cmdCtx *commandContext, cmd *cobra.Command) (*application, error) {
	app, err := cmdCtx.ensureApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	if app.cache == nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "cache",
			"cache is disabled or unavailable; set [cache] enabled = true", nil)
	}
	return app, nil
}

func newCacheListCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached explanations, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireCache(cmdCtx, cmd)
			if err != nil {
				return err
			}
			entries, err := app.cache.List(cmd.Context())
			if err != nil {
				return err
			}

			if cmdCtx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				partial := ""
				if entry.Partial {
					partial = "partial"
				}
				rows = append(rows, []string{
					entry.Fingerprint.Short(),
					entry.Language,
					string(entry.ContentType),
					entry.SnippetPreview,
					formatBytes(entry.SizeBytes),
					strconv.FormatInt(entry.AccessCount, 10),
					entry.LastAccessedAt.Local().Format(time.DateTime),
					partial,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Fingerprint", "Language", "Type", "Snippet", "Size", "Hits", "Last Used", ""},
				rows, 4, 5))
			return nil
		},
	}
}

func newCacheStatsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage and hit rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireCache(cmdCtx, cmd)
			if err != nil {
				return err
			}
			stats, err := app.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if cmdCtx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			rows := [][]string{
				{"Entries", strconv.Itoa(stats.Entries)},
				{"Used", fmt.Sprintf("%s of %s", formatBytes(stats.TotalBytes), formatBytes(stats.MaxBytes))},
				{"Hits", strconv.FormatInt(stats.Hits, 10)},
				{"Misses", strconv.FormatInt(stats.Misses, 10)},
				{"Hit rate", fmt.Sprintf("%.1f%%", stats.HitRate*100)},
				{"Disk free", fmt.Sprintf("%s (%.0f%%)", formatBytes(int64(stats.FreeBytes)), stats.FreeRatio*100)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, 1))
			return nil
		},
	}
}

func newCacheInvalidateCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <fingerprint>",
		Short: "Remove one cached explanation and close its question sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireCache(cmdCtx, cmd)
			if err != nil {
				return err
			}
			return cmdCtx.withInstanceLock(cmd.Context(), func() error {
				ctx := cmd.Context()
				removed, err := app.cache.Invalidate(ctx, fingerprint.Fingerprint(args[0]))
				if err != nil {
					return err
				}

				var closedSessions int64
				if removed != "" && app.qaEngine != nil {
					closedSessions, err = app.qaEngine.Store().CloseForContent(ctx, removed)
					if err != nil {
						return err
					}
				}

				if cmdCtx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"removed_content_id": removed,
						"closed_sessions":    closedSessions,
					})
				}
				if removed == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing cached under that fingerprint.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (closed %d session(s)).\n", removed, closedSessions)
				return nil
			})
		},
	}
}

func newCacheClearCommand(cmdCtx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached explanation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireCache(cmdCtx, cmd)
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("pass --yes to confirm clearing the cache")
			}
			return cmdCtx.withInstanceLock(cmd.Context(), func() error {
				removed, err := app.cache.Clear(cmd.Context())
				if err != nil {
					return err
				}
				if cmdCtx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"removed_entries": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries.\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n >= div*unit && exp < 4 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTP"[exp])
}
