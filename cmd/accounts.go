package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	statusadapter "github.com/bnema/botfleet/internal/adapters/render/status"
	"github.com/bnema/botfleet/internal/application"
	"github.com/bnema/botfleet/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage the bot roster",
	}

	cmd.AddCommand(
		newAccountsListCmd(app),
		newAccountsAddCmd(app),
		newAccountsSetAuthCmd(app),
		newAccountsRemoveAuthCmd(app),
		newAccountsSetStatusCmd(app),
		newAccountsSetProxyCmd(app),
		newAccountsSetLimitedCmd(app),
		newAccountsRenameCmd(app),
	)

	return cmd
}

func newAccountsListCmd(app *app) *cobra.Command {
	var rawStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses := make([]domain.AccountStatus, 0, len(rawStatuses))
			for _, raw := range rawStatuses {
				status, err := parseAccountStatus(raw)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			accounts, err := app.accounts.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(accounts)
			}

			rendered, err := app.render(statusadapter.Report{Accounts: accounts}, statusadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render accounts: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&rawStatuses, "status", nil, "Only list accounts with these statuses (online|offline|error|skipped)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newAccountsAddCmd(app *app) *cobra.Command {
	var accountID string
	var name string
	var proxyIndex int
	var limited bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new offline account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := resolveAccountID(cmd.Context(), app, accountID)
			if err != nil {
				return err
			}

			account, err := app.accounts.Register(cmd.Context(), application.RegisterAccountCommand{
				ID:         id,
				Name:       name,
				ProxyIndex: proxyIndex,
				Limited:    limited,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s (index %d)\n", account.ID, account.Index)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "0", "Account ID (0 or empty auto-assigns next: 1,2,...)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().IntVar(&proxyIndex, "proxy", 0, "Proxy index the account logs in through")
	cmd.Flags().BoolVar(&limited, "limited", false, "Mark the account as limited")

	return cmd
}

func newAccountsSetAuthCmd(app *app) *cobra.Command {
	var accountID string
	var method string
	var secretKey string
	var secretValue string

	cmd := &cobra.Command{
		Use:   "set-auth",
		Short: "Store the account credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			authMethod, err := domain.ParseAuthMethod(method)
			if err != nil {
				return err
			}

			id := domain.AccountID(accountID)
			if secretKey == "" {
				secretKey = domain.SecretKey(id, authMethod)
			}

			return app.accounts.SetAuth(cmd.Context(), id, authMethod, secretKey, secretValue)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&method, "method", string(domain.AuthMethodToken), "Auth method (token|session)")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "Secret-store key (default: botfleet/accounts/<id>/<method>)")
	cmd.Flags().StringVar(&secretValue, "secret-value", "", "Secret value")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("secret-value")

	return cmd
}

func newAccountsRemoveAuthCmd(app *app) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "remove-auth",
		Short: "Delete the account credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.accounts.RemoveAuth(cmd.Context(), domain.AccountID(accountID))
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newAccountsSetStatusCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <account> <online|offline|error|skipped>",
		Short: "Change the account status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseAccountStatus(args[1])
			if err != nil {
				return err
			}
			return app.accounts.SetStatus(cmd.Context(), domain.AccountID(args[0]), status)
		},
	}
}

func newAccountsSetProxyCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-proxy <account> <index>",
		Short: "Change the proxy index of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			proxyIndex, err := strconv.Atoi(args[1])
			if err != nil || proxyIndex < 0 {
				return fmt.Errorf("proxy index must be a non-negative number, got %q", args[1])
			}
			return app.accounts.SetProxy(cmd.Context(), domain.AccountID(args[0]), proxyIndex)
		},
	}
}

func newAccountsSetLimitedCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-limited <account> <true|false>",
		Short: "Mark an account as limited or unlimited",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limited, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("limited must be true or false, got %q", args[1])
			}
			return app.accounts.SetLimited(cmd.Context(), domain.AccountID(args[0]), limited)
		},
	}
}

func newAccountsRenameCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <account> <name>",
		Short: "Change the display name of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.accounts.SetAccountName(cmd.Context(), domain.AccountID(args[0]), args[1])
		},
	}
}

func parseAccountStatus(raw string) (domain.AccountStatus, error) {
	status := domain.AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unsupported account status %q", raw)
	}
	return status, nil
}

func resolveAccountID(ctx context.Context, app *app, raw string) (domain.AccountID, error) {
	requested := strings.TrimSpace(raw)
	if requested == "" || requested == "0" {
		return nextAvailableAccountID(ctx, app)
	}

	if n, err := strconv.Atoi(requested); err == nil && n <= 0 {
		return "", fmt.Errorf("account must be a positive number or empty/0 for auto assignment")
	}

	return domain.AccountID(requested), nil
}

func nextAvailableAccountID(ctx context.Context, app *app) (domain.AccountID, error) {
	accounts, err := app.accounts.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list accounts for auto assignment: %w", err)
	}

	used := make(map[int]struct{}, len(accounts))
	for _, account := range accounts {
		n, err := strconv.Atoi(string(account.ID))
		if err != nil || n <= 0 {
			continue
		}
		used[n] = struct{}{}
	}

	for i := 1; ; i++ {
		if _, ok := used[i]; !ok {
			return domain.AccountID(strconv.Itoa(i)), nil
		}
	}
}
