package cmd

import "github.com/spf13/cobra"

func Execute() error {
	rootCmd, closeApp := newRootCmd()
	defer func() { _ = closeApp() }()

	return rootCmd.Execute()
}

func newRootCmd() (*cobra.Command, func() error) {
	rootCmd := &cobra.Command{
		Use:           "fleet",
		Short:         "botfleet: run interaction requests across a fleet of bot accounts",
		Long:          "fleet spreads comment, vote, favorite and follow requests over the configured bot accounts, paces them, backs off on rate limits and retries failed units.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd, func() error { return nil }
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRequestCmd(app),
		newServeCmd(app),
		newAccountsCmd(app),
		newCooldownCmd(app),
		newHistoryCmd(app),
	)

	return rootCmd, app.Close
}
