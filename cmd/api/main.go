package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewdock.io/internal/config"
	"crewdock.io/internal/credential"
	"crewdock.io/internal/crew"
	"crewdock.io/internal/fleet"
	"crewdock.io/internal/httpapi"
	"crewdock.io/internal/obs"
	"crewdock.io/internal/session"
	"crewdock.io/internal/store/pg"
)

// Stamped at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DSN == "" {
		log.Fatal("CREWDOCK_PG_DSN is required")
	}

	store, err := pg.Open(cfg.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	engine, err := credential.NewEngine(cfg.RecoveryKey)
	if err != nil {
		log.Fatalf("credential engine: %v", err)
	}

	fleetSvc, err := fleet.NewService(store)
	if err != nil {
		log.Fatalf("fleet service: %v", err)
	}
	sessions, err := session.NewManager(store, store, engine, cfg.AuthSecret,
		session.WithAccessTTL(cfg.AccessTTL),
		session.WithRefreshTTL(cfg.RefreshTTL),
		session.WithResetTTL(cfg.ResetTTL),
	)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}
	// Password mutations through the crew service revoke live sessions.
	crewSvc, err := crew.NewService(store, engine, crew.WithSessionRevoker(sessions))
	if err != nil {
		log.Fatalf("crew service: %v", err)
	}

	api := httpapi.New(crewSvc, fleetSvc, sessions, httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Config{
		MaxBodyBytes:       cfg.MaxBodyBytes,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Expired refresh sessions are dead weight; sweep them hourly.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n, err := store.PurgeExpiredSessions(sweepCtx, time.Now().UTC()); err == nil && n > 0 {
					obs.Log("info", "sessions_purged", map[string]any{"count": n})
				}
			}
		}
	}()

	log.Printf("Starting crewdock-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
