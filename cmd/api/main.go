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

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/config"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/oidc"
	oidcrepo "github.com/ovaphlow/pitchfork/service-processo-console/internal/oidc/repo"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo"
	processorepo "github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/repo"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/router"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-processo-console/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/database"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting processo api")

	cfg, err := config.LoadAPI()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("database config: %v", err)
	}
	db, err := database.ConnectX(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := userrepo.NewUserRepo(db)
	refresh := oidcrepo.NewRefreshRepo(db)
	processos := processorepo.NewRepo(db)
	for name, ensure := range map[string]func(context.Context) error{
		"accounts":         users.EnsureTable,
		"refresh_sessions": refresh.EnsureTable,
		"processos":        processos.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			sugar.Fatalf("ensure table %s: %v", name, err)
		}
	}
	if n, err := refresh.DeleteExpired(ctx, time.Now()); err != nil {
		sugar.Warnf("purge expired refresh sessions: %v", err)
	} else if n > 0 {
		sugar.Infow("purged expired refresh sessions", "count", n)
	}

	userSvc := user.NewUserService(users, nil)
	if cfg.AdminPassword != "" {
		created, err := userSvc.EnsureAccount(ctx, cfg.AdminUsername, cfg.AdminFullname, cfg.AdminRole, cfg.AdminPassword)
		if err != nil {
			sugar.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			sugar.Infow("bootstrap admin created", "username", cfg.AdminUsername)
		}
	}

	issuer, err := oidc.NewOIDCService(refresh, cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		sugar.Fatalf("oidc: %v", err)
	}

	handler := router.RegisterAPIRoutes(router.APIOptions{
		Users:     user.NewHandler(userSvc, issuer, sugar),
		OIDC:      oidc.NewHandler(issuer, userSvc, sugar),
		Processos: processo.NewHandler(processo.NewService(processos), sugar),
	}, sugar)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			sugar.Infow("listening", "addr", cfg.Addr, "tls", true)
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			sugar.Infow("listening", "addr", cfg.Addr, "tls", false)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	sugar.Info("goodbye")
}
