package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"codecast/internal/services"
)

func newAskCommand(cmdCtx *commandContext) *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a follow-up question about a previous explanation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cmdCtx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			if app.qaEngine == nil {
				return services.Wrap(services.ErrConfiguration, "cli", "ask",
					"question sessions are disabled; set [qa] enabled = true", nil)
			}

			ctx := cmd.Context()
			sessionID := strings.TrimSpace(sessionFlag)
			if sessionID == "" {
				latest, found, err := app.qaEngine.Store().Latest(ctx)
				if err != nil {
					return err
				}
				if !found {
					return services.Wrap(services.ErrValidation, "cli", "ask",
						"no open session; run 'codecast explain' first or pass --session", nil)
				}
				sessionID = latest.ID
			}

			answer, err := app.qaEngine.Ask(ctx, sessionID, args[0])
			if err != nil {
				return renderFailure(cmd, cmdCtx, err)
			}

			if cmdCtx.jsonOutput() {
				return writeJSON(cmd, map[string]string{
					"session_id": sessionID,
					"question":   args[0],
					"answer":     answer,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session to ask in (defaults to the most recent open session)")
	return cmd
}
