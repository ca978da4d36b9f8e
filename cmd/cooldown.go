package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/botfleet/internal/adapters/render/status"
	"github.com/bnema/botfleet/internal/domain"
	"github.com/spf13/cobra"
)

func newCooldownCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect or reset user cooldowns",
	}

	cmd.AddCommand(newCooldownShowCmd(app), newCooldownResetCmd(app))

	return cmd
}

func newCooldownShowCmd(app *app) *cobra.Command {
	var user string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show how long a user has to wait before the next request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cooldown, err := app.requests.Cooldown(cmd.Context(), user)
			if err != nil {
				return err
			}
			return writeCooldown(cmd, app, cooldown, asJSON)
		},
	}

	cmd.Flags().StringVar(&user, "user", "local", "User")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newCooldownResetCmd(app *app) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Let a user submit a new request right away",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cooldown, err := app.requests.ResetCooldown(cmd.Context(), user)
			if err != nil {
				return err
			}
			return writeCooldown(cmd, app, cooldown, false)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func writeCooldown(cmd *cobra.Command, app *app, cooldown domain.Cooldown, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cooldown)
	}

	rendered, err := app.render(statusadapter.Report{Cooldowns: []domain.Cooldown{cooldown}}, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render cooldown: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
