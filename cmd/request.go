package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	statusadapter "github.com/bnema/botfleet/internal/adapters/render/status"
	"github.com/bnema/botfleet/internal/application"
	"github.com/bnema/botfleet/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	visibilityAuto    = "auto"
	visibilityPublic  = "public"
	visibilityPrivate = "private"
)

type requestOptions struct {
	amount      string
	user        string
	targetType  string
	texts       []string
	direction   string
	remove      bool
	visibility  string
	asJSON      bool
	metricsAddr string
	verbose     bool
}

func newRequestCmd(app *app) *cobra.Command {
	opts := requestOptions{}

	cmd := &cobra.Command{
		Use:   "request <comment|vote|favorite|follow> <target>...",
		Short: "Run an interaction on one or more targets",
		Long:  "request starts one batch per target, spreads its units over eligible accounts and waits for every batch to finish. Ctrl+C aborts the running batches.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, app, opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.amount, "amount", "1", "Units per target (number or \"all\")")
	cmd.Flags().StringVar(&opts.user, "user", "local", "Requesting user (cooldowns are tracked per user)")
	cmd.Flags().StringVar(&opts.targetType, "type", "", "Expected target type (profile|group|sharedfile|discussion|curator|review)")
	cmd.Flags().StringArrayVar(&opts.texts, "text", nil, "Comment text, repeat to rotate texts between units")
	cmd.Flags().StringVar(&opts.direction, "direction", string(domain.VoteUp), "Vote direction (up|down|funny)")
	cmd.Flags().BoolVar(&opts.remove, "remove", false, "Undo the interaction (unfavorite, unfollow)")
	cmd.Flags().StringVar(&opts.visibility, "visibility", visibilityAuto, "Target visibility override (auto|public|private)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Render JSON output")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while running")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "List every failed unit")

	return cmd
}

func runRequest(cmd *cobra.Command, app *app, opts requestOptions, rawFamily string, targets []string) error {
	template, err := opts.request(rawFamily)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		shutdown, bound, err := startHTTPServer(opts.metricsAddr, app.metrics.Handler(), app.log)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown() }()
		app.log.Info().Str("addr", bound).Msg("serving metrics")
	}

	handles := make([]*application.Handle, len(targets))
	submitErrs := make([]error, len(targets))

	var g errgroup.Group
	for i, rawTarget := range targets {
		g.Go(func() error {
			req := template
			req.RawTarget = rawTarget

			handle, err := app.requests.Submit(ctx, req)
			if err != nil {
				submitErrs[i] = fmt.Errorf("request %s: %w", rawTarget, err)
				return nil
			}
			handles[i] = handle
			return nil
		})
	}
	_ = g.Wait()

	running := make([]*application.Handle, 0, len(handles))
	for _, handle := range handles {
		if handle != nil {
			running = append(running, handle)
		}
	}

	waitCtx := context.WithoutCancel(ctx)
	if len(running) > 0 {
		if err := runBatchSpinner(waitCtx, cmd.ErrOrStderr(), running); err != nil {
			return fmt.Errorf("show progress: %w", err)
		}
	}

	outcomes := make([]domain.Outcome, 0, len(running))
	for _, handle := range running {
		outcome, err := handle.Wait(waitCtx)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, outcome)
		if outcome.Status == domain.BatchAborted || outcome.Status == domain.BatchError {
			submitErrs = append(submitErrs, fmt.Errorf("request %s ended %s", outcome.Target.ID, outcome.Status))
		}
	}

	if len(outcomes) > 0 {
		if err := writeOutcomes(cmd, app, outcomes, opts); err != nil {
			return err
		}
	}

	return errors.Join(submitErrs...)
}

// request builds everything of the application request except the target.
func (o requestOptions) request(rawFamily string) (application.Request, error) {
	family, err := domain.ParseFamily(rawFamily)
	if err != nil {
		return application.Request{}, err
	}

	interaction, err := domain.NewInteraction(family, domain.InteractionArgs{
		Texts:     o.texts,
		Direction: domain.VoteDirection(strings.ToLower(o.direction)),
		Remove:    o.remove,
	})
	if err != nil {
		return application.Request{}, err
	}

	amount, err := application.ParseAmount(o.amount)
	if err != nil {
		return application.Request{}, err
	}

	var expected domain.TargetType
	if o.targetType != "" {
		if expected, err = domain.ParseTargetType(o.targetType); err != nil {
			return application.Request{}, err
		}
	}

	public, err := parseVisibility(o.visibility)
	if err != nil {
		return application.Request{}, err
	}

	return application.Request{
		User:         o.user,
		ExpectedType: expected,
		Interaction:  interaction,
		Amount:       amount,
		Public:       public,
	}, nil
}

func parseVisibility(raw string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", visibilityAuto:
		return nil, nil
	case visibilityPublic:
		public := true
		return &public, nil
	case visibilityPrivate:
		public := false
		return &public, nil
	default:
		return nil, fmt.Errorf("unsupported visibility %q", raw)
	}
}

func writeOutcomes(cmd *cobra.Command, app *app, outcomes []domain.Outcome, opts requestOptions) error {
	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	rendered, err := app.render(statusadapter.Report{Outcomes: outcomes}, statusadapter.RenderOptions{
		Now:     app.now(),
		Verbose: opts.verbose,
	})
	if err != nil {
		return fmt.Errorf("render outcomes: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
