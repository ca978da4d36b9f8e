package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	redisstore "github.com/bnema/botfleet/internal/adapters/cooldown/redis"
	memorystore "github.com/bnema/botfleet/internal/adapters/cooldown/memory"
	"github.com/bnema/botfleet/internal/adapters/history/sqlite"
	"github.com/bnema/botfleet/internal/adapters/metrics"
	"github.com/bnema/botfleet/internal/adapters/platform/httpapi"
	statusadapter "github.com/bnema/botfleet/internal/adapters/render/status"
	tomlrepo "github.com/bnema/botfleet/internal/adapters/repo/toml"
	chainstore "github.com/bnema/botfleet/internal/adapters/secrets/chain"
	filestore "github.com/bnema/botfleet/internal/adapters/secrets/file"
	passstore "github.com/bnema/botfleet/internal/adapters/secrets/pass"
	"github.com/bnema/botfleet/internal/application"
	"github.com/bnema/botfleet/internal/config"
	"github.com/bnema/botfleet/internal/logger"
	"github.com/bnema/botfleet/internal/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const wireTimeout = 10 * time.Second

type app struct {
	cfg         config.Config
	log         zerolog.Logger
	accounts    *application.AccountService
	requests    *application.RequestService
	history     *sqlite.Store
	secretStore ports.SecretStore
	metrics     *metrics.Observer
	render      func(statusadapter.Report, statusadapter.RenderOptions) (string, error)
	now         func() time.Time
	closers     []func() error
}

func wireApp() (*app, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wireTimeout)
	defer cancel()

	v := viper.New()
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Component: "fleet"})

	a := &app{
		cfg:    cfg,
		log:    log,
		render: statusadapter.Render,
		now:    time.Now,
	}

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}

	a.secretStore, err = wireSecretStore(cfg.Secrets, log)
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	cooldowns, err := a.wireCooldownStore(ctx, v)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("wire cooldown store: %w", err)
	}

	a.history, err = sqlite.Open(ctx, cfg.History.Path, log.With().Str("component", "history").Logger())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("wire history store: %w", err)
	}
	a.closers = append(a.closers, a.history.Close)

	platform := &httpapi.Client{
		BaseURL:        cfg.Platform.BaseURL,
		HTTPClient:     http.DefaultClient,
		RequestTimeout: cfg.Platform.Timeout,
		UserAgent:      cfg.Platform.UserAgent,
		Secrets:        a.secretStore,
	}

	clock := ports.SystemClock{}
	a.metrics = metrics.NewObserver(nil)
	observer := ports.Observers{a.metrics}

	registry := application.NewRegistry(clock, cfg.Cooldowns.GlobalAccountCooldown)
	classifier := application.NewFailureClassifier(cfg.Scheduler.RateLimitPenalty)

	a.accounts = application.NewAccountService(repo, a.secretStore)
	a.requests = application.NewRequestService(application.RequestServiceDeps{
		Accounts: repo,
		Resolver: platform,
		Platform: platform,
		Ledger:   application.NewCooldownLedger(cooldowns, clock, cfg.Cooldowns.UserCooldown, cfg.Cooldowns.ExemptUsers),
		Registry: registry,
		Selector: application.NewAccountSelector(repo, a.history, platform, registry, application.SelectionPolicy{
			MaxCommentsPerAccount: cfg.Selection.MaxCommentsPerAccount,
			Randomize:             cfg.Selection.Randomize,
			AllowLimited:          cfg.Selection.AllowLimited,
		}),
		Scheduler: application.NewIterationScheduler(repo, a.history, classifier, clock, cfg.Scheduler.RequestDelay,
			application.WithObserver(observer),
			application.WithSchedulerLogger(log.With().Str("component", "scheduler").Logger()),
		),
		Retry: application.NewRetryCoordinator(application.RetryPolicy{
			Enabled:      cfg.Retry.Enabled,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			Delay:        cfg.Retry.Delay,
			RequestDelay: cfg.Scheduler.RequestDelay,
		}),
		Observer: observer,
		Clock:    clock,
		Logger:   log.With().Str("component", "requests").Logger(),
	}, application.RequestServiceConfig{
		MaxAmount:    cfg.Selection.MaxAmount,
		RequestDelay: cfg.Scheduler.RequestDelay,
	})

	return a, nil
}

func wireSecretStore(cfg config.SecretsConfig, log zerolog.Logger) (ports.SecretStore, error) {
	switch cfg.Backend {
	case config.SecretsBackendFile:
		return filestore.NewStore(cfg.Path), nil
	case config.SecretsBackendPass:
		var opts []passstore.Option
		if cfg.PassDir != "" {
			opts = append(opts, passstore.WithStoreDir(cfg.PassDir))
		}
		return passstore.NewStore(opts...), nil
	default:
		return chainstore.NewPassFirstWithFileFallback(cfg.Path, cfg.PassDir, chainstore.WithLogger(log.With().Str("component", "secrets").Logger()))
	}
}

func (a *app) wireCooldownStore(ctx context.Context, v *viper.Viper) (ports.CooldownStore, error) {
	switch a.cfg.Cooldowns.Backend {
	case config.CooldownBackendRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Address:   a.cfg.Redis.Address,
			Password:  a.cfg.Redis.Password,
			DB:        a.cfg.Redis.DB,
			KeyPrefix: a.cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return redisstore.NewStore(client, a.cfg.Redis.KeyPrefix), nil
	case config.CooldownBackendMemory:
		return memorystore.NewStore(), nil
	default:
		return tomlrepo.NewCooldownRepository(v)
	}
}

// Close releases the stores opened by wireApp, most recent first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
