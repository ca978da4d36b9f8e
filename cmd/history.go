package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/spf13/cobra"
)

type historyFlags struct {
	target     string
	targetType string
	family     string
	account    string
}

func (f historyFlags) query() (domain.HistoryQuery, error) {
	query := domain.HistoryQuery{
		TargetID:  strings.TrimSpace(f.target),
		AccountID: domain.AccountID(strings.TrimSpace(f.account)),
	}

	if f.family != "" {
		family, err := domain.ParseFamily(f.family)
		if err != nil {
			return domain.HistoryQuery{}, err
		}
		query.Family = family
	}
	if f.targetType != "" {
		targetType, err := domain.ParseTargetType(f.targetType)
		if err != nil {
			return domain.HistoryQuery{}, err
		}
		query.TargetType = targetType
	}

	return query, nil
}

func (f *historyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.target, "target", "", "Target ID")
	cmd.Flags().StringVar(&f.targetType, "type", "", "Target type")
	cmd.Flags().StringVar(&f.family, "family", "", "Interaction (comment|vote|favorite|follow)")
	cmd.Flags().StringVar(&f.account, "account", "", "Account ID")
}

func newHistoryCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the interactions accounts already performed",
	}

	cmd.AddCommand(newHistoryListCmd(app), newHistoryForgetCmd(app))

	return cmd
}

func newHistoryListCmd(app *app) *cobra.Command {
	var flags historyFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded interactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := flags.query()
			if err != nil {
				return err
			}

			records, err := app.history.Find(cmd.Context(), query)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no interactions recorded")
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TARGET\tTYPE\tINTERACTION\tACCOUNT\tAT")
			for _, record := range records {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					record.TargetID, record.TargetType, record.Family, record.AccountID, record.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newHistoryForgetCmd(app *app) *cobra.Command {
	var flags historyFlags

	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Forget recorded interactions so accounts can repeat them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := flags.query()
			if err != nil {
				return err
			}
			if query.TargetID == "" && query.AccountID == "" {
				return errors.New("forget needs --target or --account")
			}

			removed, err := app.history.Remove(cmd.Context(), query)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "forgot %d interactions\n", removed)
			return err
		},
	}

	flags.bind(cmd)

	return cmd
}
