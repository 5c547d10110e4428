package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/bara-app/buddy-service/internal/allowance"
	"github.com/bara-app/buddy-service/internal/auth"
	"github.com/bara-app/buddy-service/internal/buddy"
	"github.com/bara-app/buddy-service/internal/cache"
	"github.com/bara-app/buddy-service/internal/config"
	"github.com/bara-app/buddy-service/internal/database"
	"github.com/bara-app/buddy-service/internal/handlers"
	"github.com/bara-app/buddy-service/internal/localstore"
	"github.com/bara-app/buddy-service/internal/middleware"
	"github.com/bara-app/buddy-service/internal/monitor"
	"github.com/bara-app/buddy-service/internal/store"
)

func main() {
	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}

	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Device-local state (settings, allowance, idempotency marker) always
	// lives in the SQLite key-value store, whichever variant serves the
	// shared ledger.
	kv, err := localstore.OpenSQLiteKV(cfg.LocalStorePath)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer kv.Close()
	settings := localstore.NewSettings(kv)

	var (
		profiles store.ProfileStore
		requests store.RequestStore
		limits   store.LimitStore
	)
	if cfg.Remote() {
		pool, err := database.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()
		db := database.NewStore(pool)
		profiles, requests, limits = db, db, db
		logger.Info("running with the remote-backed store")
	} else {
		local := localstore.New(kv)
		profiles, requests = local, local
		// No shared ledger to count approvals against, so no daily cap.
		logger.Info("no DATABASE_URL configured, running with the local store")
	}

	var profileCache buddy.ProfileCache = settings
	if cfg.RedisAddr != "" {
		c, err := cache.Connect(cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer c.Close()
		profileCache = c
	}

	mon := &monitor.LogMonitor{Log: logger}

	svc := buddy.NewService(buddy.Config{
		Profiles:     profiles,
		Requests:     requests,
		Limits:       limits,
		Cache:        profileCache,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		OnReset: func(ctx context.Context) error {
			mon.ClearShieldsAndDisableBonus()
			return settings.ClearBorrowState()
		},
	})

	bridge := allowance.NewBridge(settings, mon, svc, logger)

	api := handlers.NewAPI(svc, bridge, logger)
	mux := http.NewServeMux()
	api.Routes(mux)

	handler := middleware.LogMiddleware(logger)(middleware.TimeoutMiddleware(cfg.RequestTimeout)(mux))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
