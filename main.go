package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-branch-bot/broadcast"
	"whatsapp-branch-bot/config"
	"whatsapp-branch-bot/dashboard"
	"whatsapp-branch-bot/queue"
	"whatsapp-branch-bot/utils"
	"whatsapp-branch-bot/whatsapp"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	logger, logFile := utils.NewLogger(utils.LogConfig{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: cfg.LogConsole,
	})
	defer logFile.Close()

	branches, err := config.LoadBranches(cfg.BranchesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load branches")
	}
	logger.Info().Int("branches", len(branches)).Str("file", cfg.BranchesFile).Msg("starting WhatsApp branch bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub(logger)
	replies := queue.NewDispatcher("replies", cfg.ReplyWorkers, cfg.ReplyQueue, cfg.ReplyTimeout)

	manager := whatsapp.NewManager(branches, whatsapp.Options{
		AuthDir: cfg.AuthDir,
		Config: whatsapp.ControllerConfig{
			RedirectTemplate: cfg.ReplyTemplate,
			MessageFeed:      cfg.MessageFeed,
			PrintQR:          cfg.PrintQR,
			Retry: &utils.RetryConfig{
				InitialInterval: cfg.ReconnectInitial,
				MaxInterval:     cfg.ReconnectMax,
			},
			ReplyRate:  cfg.ReplyRate,
			ReplyBurst: cfg.ReplyBurst,
			DedupeSize: cfg.DedupeSize,
			DedupeTTL:  cfg.DedupeTTL,
		},
		Hub:     hub,
		Replies: replies,
		Factory: whatsapp.NewTransport,
		Logger:  logger,
	})
	hub.SetSource(manager.Registry())
	manager.Start(ctx)

	server := dashboard.New(dashboard.Config{
		Addr:      cfg.Addr(),
		StaticDir: cfg.StaticDir,
		Branches:  branches,
		Sessions:  manager.Registry(),
		Socket:    http.HandlerFunc(hub.ServeWS),
		Logger:    logger,
	})
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("dashboard server failed")
		stop()
	}

	logger.Info().Msg("shutting down")
	hub.Close()
	manager.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	replies.Stop(drainCtx)
	logger.Info().Msg("stopped")
}
