package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/hpungsan/aura/internal/clock"
	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/db"
	"github.com/hpungsan/aura/internal/notify"
	"github.com/hpungsan/aura/internal/ops"
	"github.com/hpungsan/aura/internal/pgdb"
	"github.com/hpungsan/aura/internal/push"
	"github.com/hpungsan/aura/internal/schedule"
	"github.com/hpungsan/aura/internal/store"
)

const databaseInitTimeout = 15 * time.Second

// storeService closes the backing store on injector shutdown.
type storeService struct {
	store.Store
}

func (s storeService) Shutdown() error { return s.Close() }

// schedulerService is the configured scheduler backend. Start is a no-op for
// the in-memory backend.
type schedulerService struct {
	schedule.Scheduler
	start func(ctx context.Context)
	stop  func(ctx context.Context) error
}

// Start begins background processing of due jobs.
func (s *schedulerService) Start(ctx context.Context) {
	if s.start != nil {
		s.start(ctx)
	}
}

// Shutdown stops the scheduler and waits for running actions.
func (s *schedulerService) Shutdown(ctx context.Context) error {
	return s.stop(ctx)
}

// newInjector registers the service graph. Providers are lazy, so a command
// only opens what it uses.
func newInjector(baseDir string, cfg *config.Config, logger *slog.Logger) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.ProvideValue(injector, clock.System())

	do.Provide(injector, func(i do.Injector) (store.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.DatabaseURL == "" {
			st, err := db.Open(baseDir, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}
			return storeService{st}, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()
		st, err := pgdb.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storeService{st}, nil
	})

	do.Provide(injector, func(i do.Injector) (push.Transport, error) {
		cfg := do.MustInvoke[*config.Config](i)
		router := push.NewRouter().Handle(push.KindWebhook, push.NewWebhookSender(nil))
		if cfg.DiscordToken != "" {
			d, err := push.NewDiscordSender(cfg.DiscordToken)
			if err != nil {
				return nil, fmt.Errorf("failed to create discord sender: %w", err)
			}
			router.Handle(push.KindDiscord, d)
		}
		return router, nil
	})

	do.Provide(injector, func(i do.Injector) (*notify.Dispatcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[store.Store](i)
		transport := do.MustInvoke[push.Transport](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return notify.NewDispatcher(st, st, transport, cfg.MaxParallelSends, logger), nil
	})

	do.Provide(injector, func(i do.Injector) (*schedulerService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		c := do.MustInvoke[clock.Clock](i)
		logger := do.MustInvoke[*slog.Logger](i)
		dispatcher := do.MustInvoke[*notify.Dispatcher](i)

		if cfg.Scheduler == config.SchedulerMemory {
			ts := schedule.NewTimerScheduler(c, cfg.ActionTimeout.Std(), logger)
			ts.Register(notify.ActionCheckIn, dispatcher.Action())
			return &schedulerService{Scheduler: ts, stop: ts.Close}, nil
		}

		st := do.MustInvoke[store.Store](i)
		ds := schedule.NewDurableScheduler(st, c, schedule.Options{
			PollInterval:  cfg.PollInterval.Std(),
			ClaimTimeout:  cfg.ClaimTimeout.Std(),
			ActionTimeout: cfg.ActionTimeout.Std(),
		}, logger)
		ds.Register(notify.ActionCheckIn, dispatcher.Action())
		return &schedulerService{Scheduler: ds, start: ds.Start, stop: ds.Close}, nil
	})

	do.Provide(injector, func(i do.Injector) (*ops.Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[store.Store](i)
		sched := do.MustInvoke[*schedulerService](i)
		c := do.MustInvoke[clock.Clock](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return ops.NewService(st, sched, c, cfg, logger), nil
	})

	return injector
}
