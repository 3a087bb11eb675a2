package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"client_go/internal/config"
	"client_go/internal/devserver"
	"client_go/internal/logger"
	"client_go/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "devserver:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadDevServer()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, "stderr")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	srv, err := devserver.New(cfg, st, log)
	if err != nil {
		return err
	}
	if cfg.Seed {
		if err := srv.Seed(ctx); err != nil {
			return err
		}
	}

	log.Info("devserver_starting", zap.String("addr", cfg.HTTPAddr()), zap.Bool("postgres", st.Dialect() == store.Postgres))
	return srv.ListenAndServe(ctx)
}
