package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/role"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/router"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/utilities"
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
	sugar.Info("starting service-diary-core")

	dbCfg := database.ConfigFromEnv()
	db, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dbCfg.AutoMigrate {
		if err := database.Migrate(ctx, db, dbCfg.Driver); err != nil {
			sugar.Fatalf("db migrate: %v", err)
		}
		sugar.Infow("migrations applied", "driver", dbCfg.Driver)
	}

	ids, err := utilities.NodeFromEnv()
	if err != nil {
		sugar.Fatalf("snowflake node: %v", err)
	}
	clock := clockwork.NewRealClock()
	store := database.NewStore(db, clock, ids)

	tokenCfg := oidc.ConfigFromEnv()
	if tokenCfg.Secret == "" {
		sugar.Warn("JWT_SECRET not set; signing with an ephemeral RSA key, tokens will not survive a restart")
	}
	issuer, err := oidc.NewIssuer(tokenCfg, clock)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}
	tokens := oidc.NewTokenService(store, issuer, sugar)
	auth := user.NewAuthService(store, user.HasherFromEnv(), tokens, sugar)
	roles := role.NewService(store, sugar)

	handler := router.RegisterRoutes(sugar, router.Deps{
		Auth:   user.NewHandler(auth, sugar),
		Tokens: oidc.NewHandler(tokens, sugar),
		Roles:  role.NewHandler(roles, sugar),
		Issuer: issuer,
		Ping:   db.PingContext,
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "addr", addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
