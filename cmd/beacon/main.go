// cmd/beacon/main.go
//
// beacon is the signed-interaction API server: it accepts signed liveness
// check-ins and task responses from agents, verifies them against an external
// signature verification service, and applies them to the key-value store.
//
// Usage:
//
//	beacon [--config beacon.yaml]
//
// Configuration may also be supplied through BEACON_-prefixed environment
// variables (BEACON_LISTEN, BEACON_ADMIN_TOKEN_HASH, BEACON_VERIFIER_URL,
// BEACON_STORE_POSTGRES_DSN, ...).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonics/beacon/internal/config"
	"github.com/halcyonics/beacon/internal/feed"
	"github.com/halcyonics/beacon/internal/kv"
	"github.com/halcyonics/beacon/internal/observability"
	"github.com/halcyonics/beacon/internal/server"
	"github.com/halcyonics/beacon/internal/verifier"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not up yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	hub := feed.NewHub(log.Named("feed"))
	srv := server.New(store, verifier.NewRemote(cfg.VerifierURL), hub, cfg.AdminTokenHash, log.Named("server"))

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("beacon listening", zap.String("addr", cfg.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// openStore selects the KV backend from configuration: Postgres when a DSN is
// set, SQLite otherwise.
func openStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, func(), error) {
	if cfg.PostgresDSN != "" {
		pg, err := kv.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	sq, err := kv.NewSqlite(cfg.SqlitePath)
	if err != nil {
		return nil, nil, err
	}
	return sq, func() { sq.Close() }, nil
}
