package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/config"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/guard"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/router"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/session"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.LoadConsole()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting console server", "addr", cfg.Addr, "api_base", cfg.APIBaseURL, "env", cfg.Environment)

	apiBase, err := cfg.APIBase()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	// The form login sets the cookie on the browser response itself, so the
	// service is built without a bridge origin.
	authSvc := auth.NewService(apiBase, nil, &http.Client{Timeout: 15 * time.Second}, sugar)

	handler := router.RegisterConsoleRoutes(router.ConsoleOptions{
		Session: session.NewHandler(session.Options{
			MaxAge: cfg.CookieMaxAge,
			Secure: cfg.Production(),
		}, sugar),
		Guard:   guard.DefaultConfig(),
		Auth:    authSvc,
		APIBase: cfg.APIBaseURL,
	}, sugar)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
}
