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

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/connect4-sync/internal/config"
	"github.com/DoyleJ11/connect4-sync/internal/httpapi"
	"github.com/DoyleJ11/connect4-sync/internal/hub"
	"github.com/DoyleJ11/connect4-sync/internal/store"
	"github.com/DoyleJ11/connect4-sync/internal/store/memstore"
	"github.com/DoyleJ11/connect4-sync/internal/store/pgstore"
	"github.com/DoyleJ11/connect4-sync/internal/store/redisstore"
	"github.com/DoyleJ11/connect4-sync/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	log, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	h := hub.NewHub(context.Background(), log.Named("hub"))

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(ws.Deps{
		Hub:            h,
		Store:          st,
		Log:            log.Named("ws"),
		OnlineDrop:     cfg.DropTime,
		OriginPatterns: cfg.Origins,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", string(cfg.Store)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// release rooms before connections go away so opponents see the departure
		return multierr.Combine(h.Shutdown(sctx), srv.Shutdown(sctx))
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreRedis:
		s, err := redisstore.Open(ctx, cfg.RedisURL, cfg.RoomTTL, log.Named("redis"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := pgstore.Open(cfg.DatabaseURL, log.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return memstore.New(log.Named("memory")), func() error { return nil }, nil
	}
}
