// Package cmd hosts the shared bot entrypoint: config loading, bootstrap,
// engine wiring and the run loop with signal handling.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/godialog/core/bootstrap"
	coreconfig "github.com/m3rciful/godialog/core/config"
	coredatabase "github.com/m3rciful/godialog/core/database"
	"github.com/m3rciful/godialog/core/dialogue"
	"github.com/m3rciful/godialog/core/logger"
	coretelegram "github.com/m3rciful/godialog/core/telegram"

	"log/slog"
)

// Options describe how to locate configuration and wire dialogues.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	// Database is consulted only when the postgres store backend is selected.
	Database coredatabase.Config

	// Setup registers dialogue definitions on the engine and returns any
	// extra routes (typically StartCommand bindings) to install.
	Setup func(cfg *coreconfig.Config, eng *dialogue.Engine, rt coretelegram.Runtime) ([]coretelegram.Route, error)
}

// Run loads configuration, bootstraps infrastructure, builds the dialogue
// engine and starts the bot runtime until interrupted.
func Run(opts Options) error {
	if opts.Setup == nil {
		return fmt.Errorf("cmd: Setup is required")
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg, Database: opts.Database})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if err := boot.Close(); err != nil {
			log.Printf("store shutdown error: %v", err)
		}
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	bot, err := coretelegram.NewBot(cfg)
	if err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	rt := coretelegram.Runtime{Bot: bot, Sender: coretelegram.NewBotSender(bot)}

	eng, err := dialogue.NewEngine(bootstrap.DialogueOptions(cfg, boot.Store, rt.Sender))
	if err != nil {
		return fmt.Errorf("cmd: engine build failed: %w", err)
	}

	extra, err := opts.Setup(cfg, eng, rt)
	if err != nil {
		return fmt.Errorf("cmd: setup failed: %w", err)
	}
	routes := append(coretelegram.DialogueRoutes(eng, nil), extra...)

	startedAt := time.Now()
	runOpts := coretelegram.RunOptions{
		Config:      cfg,
		Middlewares: coretelegram.DefaultMiddlewares(cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			logger.Info(ctx, "app", "ready",
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			logger.Info(ctx, "app", "shutdown")
			return nil
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return coretelegram.RunTelegram(ctx, bot, runOpts)
}
