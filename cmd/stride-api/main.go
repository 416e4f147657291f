// README: Entry point; loads config, wires stores, routing and live tracking, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"stride/internal/config"
	httptransport "stride/internal/http"
	"stride/internal/infra"
	"stride/internal/modules/activity"
	"stride/internal/modules/session"
	"stride/internal/modules/tracking"
	"stride/internal/notify"
	"stride/internal/routing"
	"stride/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	router, err := routing.NewRouter(cfg.Routing)
	if err != nil {
		log.Fatalf("routing init: %v", err)
	}
	gateway := routing.NewGateway(router, cfg.Routing)

	activityStore := activity.NewStore(dbPool)
	trackingStore := tracking.NewStore(redisClient)
	hub, err := tracking.NewHub(ctx, trackingStore)
	if err != nil {
		log.Fatalf("tracking hub: %v", err)
	}
	defer hub.Close()

	var alerts service.AlertFactory
	if cfg.Firebase.ProjectID != "" {
		fcm, err := notify.Dial(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		alerts = func(token string) session.Alerter { return fcm.ForDevice(token) }
	} else {
		log.Printf("STRIDE_FIREBASE_PROJECT_ID not set; off-route push alerts disabled")
	}

	// Runners outlive individual requests; cancelling runCtx cancels every live session.
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	workspace := service.NewWorkspace(gateway, cfg.Path.HistoryDepth, activityStore)
	tracker := service.NewTracker(runCtx, service.TrackerDeps{
		Publisher: hub,
		Sink:      activityStore,
		Alerts:    alerts,
	}, cfg.Session)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httptransport.NewRouter(httptransport.RouterDeps{
			Workspace:  workspace,
			Tracker:    tracker,
			Hub:        hub,
			Live:       trackingStore,
			Activities: activityStore,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		cancelRuns()
		tracker.Wait()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}
