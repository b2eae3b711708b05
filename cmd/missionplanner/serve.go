package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"household-missions/internal/api"
	"household-missions/internal/bot"
	"household-missions/internal/service"
)

const reconcileInterval = time.Hour

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the HTTP API and the scheduled jobs",
		RunE:  runServe,
	}
	cmd.Flags().String("http", "", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if v, _ := cmd.Flags().GetString("http"); v != "" {
		a.cfg.HTTPAddr = v
	}

	var telegramBot *bot.Bot
	if a.cfg.TelegramToken != "" {
		telegramBot, err = bot.New(a.cfg.TelegramToken, bot.Deps{
			Users:       a.users,
			Tasks:       a.tasks,
			Progress:    a.progress,
			Families:    a.families,
			Reminders:   a.reminder,
			Suggestions: a.gen,
			Location:    a.cfg.Location,
			Logger:      a.log,
		})
		if err != nil {
			return err
		}
		telegramBot.Attach(a.bus)
	} else {
		a.log.Warn("TELEGRAM_TOKEN is empty, the bot is disabled")
	}

	scheduler := service.NewSchedulerService(a.cfg.Location, a.log, a.metrics)
	if _, err := scheduler.ScheduleDaily("suggestions", a.cfg.SuggestionTime, a.offerSuggestions); err != nil {
		return err
	}
	if _, err := scheduler.ScheduleInterval("reconcile", reconcileInterval, func(ctx context.Context) error {
		_, err := a.trigger.Reconcile(ctx)
		return err
	}); err != nil {
		return err
	}
	if telegramBot != nil && a.cfg.ReportInterval > 0 {
		if _, err := scheduler.ScheduleInterval("reports", a.cfg.ReportInterval, telegramBot.SendDailyReports); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Grants lost to a crash between completion and payout are settled on boot.
	scheduler.Run("reconcile", func(ctx context.Context) error {
		_, err := a.trigger.Reconcile(ctx)
		return err
	})

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.HTTPAddr != "" {
		server := api.NewServer(api.Deps{
			Tasks:       a.tasks,
			Progress:    a.progress,
			Families:    a.families,
			Suggestions: a.gen,
			Metrics:     a.metrics,
			Location:    a.cfg.Location,
			Logger:      a.log,
		})
		g.Go(func() error { return server.Run(ctx, a.cfg.HTTPAddr) })
	}
	if telegramBot != nil {
		g.Go(func() error { return telegramBot.Start(ctx) })
	}

	a.log.Info("mission planner started", slog.String("http", a.cfg.HTTPAddr), slog.Bool("bot", telegramBot != nil))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
