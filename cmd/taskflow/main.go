// taskflow serves the TaskFlow REST API and real-time event stream.
//
// Configuration comes from a YAML file (--config), TASKFLOW_* environment
// variables and the flags below, in increasing precedence. Use
// --init-config to write a default file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nhle/taskflow/internal/accounts"
	"github.com/nhle/taskflow/internal/activity"
	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/mailer"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	"github.com/nhle/taskflow/internal/server"
	"github.com/nhle/taskflow/internal/store"
	"github.com/nhle/taskflow/internal/sync"
	"github.com/nhle/taskflow/internal/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath        string
	address           string
	databasePath      string
	initConfig        bool
	seedAdminEmail    string
	seedAdminName     string
	seedAdminPassword string
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("taskflow", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", model.DefaultConfigPath(), "path to the YAML configuration file")
	flagSet.StringVar(&opts.address, "address", "", "listen address (overrides server.address)")
	flagSet.StringVar(&opts.databasePath, "database", "", "SQLite database path (overrides database.path)")
	flagSet.BoolVar(&opts.initConfig, "init-config", false, "write a default configuration file and exit")
	flagSet.StringVar(&opts.seedAdminEmail, "seed-admin-email", "", "create an Admin account with this email if none exists")
	flagSet.StringVar(&opts.seedAdminName, "seed-admin-name", "Administrator", "full name for the seeded Admin account")
	flagSet.StringVar(&opts.seedAdminPassword, "seed-admin-password", "", "password for the seeded Admin account (or TASKFLOW_SEED_ADMIN_PASSWORD)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if opts.initConfig {
		if err := model.SaveConfig(opts.configPath, model.DefaultAppConfig()); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote default configuration to %s\n", opts.configPath)
		return nil
	}

	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if opts.databasePath != "" {
		cfg.Database.Path = opts.databasePath
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, opts, logger)
}

func serve(ctx context.Context, cfg *model.AppConfig, opts options, logger *slog.Logger) error {
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	issuer, err := identity.NewIssuerFromConfig(cfg.Auth, logger)
	if err != nil {
		return err
	}
	resolver := identity.NewResolver(issuer, identity.NewRevocations(), db)

	recorder := activity.NewRecorder(db, logger.With("component", "activity"))
	router := notify.NewRouter(logger.With("component", "notify"))
	dispatcher := sync.NewDispatcher(logger.With("component", "dispatch"), 0)

	accountService := accounts.NewService(
		db, resolver, recorder,
		mailer.NewSender(cfg.SMTP, logger.With("component", "mailer")),
		cfg.Accounts, logger.With("component", "accounts"),
	)
	taskService := tasks.NewService(db, recorder, router, dispatcher, logger.With("component", "tasks"))

	if opts.seedAdminEmail != "" {
		password := opts.seedAdminPassword
		if password == "" {
			password = os.Getenv("TASKFLOW_SEED_ADMIN_PASSWORD")
		}
		user, created, err := accountService.SeedAdmin(ctx, opts.seedAdminEmail, opts.seedAdminName, password)
		if err != nil {
			return err
		}
		if !created {
			logger.Info("admin account already exists", "user_id", user.ID, "email", user.Email)
		}
	}

	handler := api.NewHandler(api.Deps{
		Tasks:          taskService,
		Accounts:       accountService,
		Activity:       recorder,
		Resolver:       resolver,
		Router:         router,
		Auth:           cfg.Auth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.With("component", "api"),
	})

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second
	httpServer := server.New(server.Config{
		Address:         cfg.Server.Address,
		Handler:         handler.Routes(),
		ShutdownTimeout: shutdownTimeout,
		Logger:          logger,
	})

	serveErr := httpServer.Serve(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.Warn("pending side effects abandoned", "error", err)
	}

	return serveErr
}

// newLogger builds the process logger from the log section.
func newLogger(cfg model.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parsing log.level %q: %w", cfg.Level, err)
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), nil
}
