package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"household-missions/internal/config"
	"household-missions/internal/events"
	"household-missions/internal/metrics"
	"household-missions/internal/progression"
	"household-missions/internal/repository"
	"household-missions/internal/service"
	"household-missions/internal/suggestion"
	"household-missions/internal/trigger"
)

// app holds everything the subcommands share.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *gorm.DB
	bus     *events.Bus
	nc      *nats.Conn
	metrics *metrics.Metrics

	users    *repository.UserRepository
	tasks    *service.TaskService
	progress *service.ProgressService
	families *service.FamilyService
	reminder *service.ReminderService
	trigger  *trigger.LevelTrigger
	gen      *suggestion.Generator
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	a := &app{cfg: cfg, log: logger, db: db, bus: events.NewBus(logger), metrics: metrics.New()}

	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.nc = nc
		events.NewNATSForwarder(nc, cfg.NATSSubjectPrefix, logger).Attach(a.bus)
		logger.Info("forwarding events to NATS", slog.String("url", cfg.NATSURL))
	}

	pool, err := suggestion.LoadPool(cfg.SuggestionTemplates)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := service.Options{Location: cfg.Location, Logger: logger, Metrics: a.metrics}
	a.users = repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	grants := repository.NewGrantRepository(db)

	a.tasks = service.NewTaskService(taskRepo, familyRepo, a.users, a.bus, opts)
	a.progress = service.NewProgressService(a.users, grants, cfg.StreakLookbackDays, opts)
	a.families = service.NewFamilyService(familyRepo, logger)
	a.reminder = service.NewReminderService(a.tasks, a.progress, a.users)

	a.trigger = trigger.New(grants, taskRepo, progression.NewEngine(logger), a.bus, trigger.Options{
		Location: cfg.Location,
		Logger:   logger,
		Metrics:  a.metrics,
	})
	a.trigger.Attach(a.bus)

	a.gen = suggestion.NewGenerator(repository.NewSuggestionRepository(db), pool, a.bus, suggestion.Options{
		CooldownDays: cfg.SuggestionCooldownDays,
		PoolSize:     cfg.SuggestionPoolSize,
		Location:     cfg.Location,
		Logger:       logger,
		Metrics:      a.metrics,
	})
	return a, nil
}

// close waits for in-flight event handlers before releasing connections.
func (a *app) close() {
	a.bus.Drain()
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.log.Warn("drain nats", slog.String("error", err.Error()))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// offerSuggestions expires yesterday's leftovers and offers today's batch to everyone.
func (a *app) offerSuggestions(ctx context.Context) error {
	expired, err := a.gen.ExpireStale(ctx)
	if err != nil {
		return err
	}
	users, err := a.users.ListAll(ctx)
	if err != nil {
		return err
	}
	offered := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := a.gen.Generate(ctx, u.ID)
		if err != nil {
			a.log.Warn("generate suggestions", slog.Uint64("user_id", uint64(u.ID)), slog.String("error", err.Error()))
			continue
		}
		offered += len(batch)
	}
	a.log.Info("daily suggestions", slog.Int("users", len(users)), slog.Int("offered", offered), slog.Int64("expired", expired))
	return nil
}
