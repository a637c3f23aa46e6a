package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"blogapp/internal/accounts"
	"blogapp/internal/blogs"
	"blogapp/internal/config"
	"blogapp/internal/http/router"
	"blogapp/internal/images"
	"blogapp/internal/logging"
	"blogapp/internal/sessions"
	"blogapp/internal/storage"
)

func main() {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load("config/app.yaml")
	if err != nil {
		log.Warn("failed to load config, using defaults", "err", err)
		cfg = config.Default()
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer db.Close()

	accountStore := accounts.NewStore(db, cfg.Tables.Users, log)
	sessionMgr := sessions.NewManager(db, cfg.Tables.Sessions, cfg.SessionLifetime(), log)
	blogStore := blogs.NewStore(db, cfg.Tables.Blogs, cfg.BlogDir, log)
	imageStore := images.NewStore(cfg.ImageDir, log)

	if err := accountStore.Init(ctx); err != nil {
		return err
	}
	if err := sessionMgr.Init(ctx); err != nil {
		return err
	}
	if err := blogStore.Init(ctx); err != nil {
		return err
	}
	if err := imageStore.Init(); err != nil {
		return err
	}

	go sessionMgr.Sweep(ctx, cfg.SweepInterval())

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	srv := &http.Server{
		Addr: ":" + port,
		Handler: router.Setup(router.Deps{
			Accounts: accountStore,
			Sessions: sessionMgr,
			Blogs:    blogStore,
			Images:   imageStore,
			Lifetime: cfg.SessionLifetime(),
			ImageDir: cfg.ImageDir,
			Log:      log,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
