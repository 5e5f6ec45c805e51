// Sweeper periodically removes expired session records from the shared store.
// Run one instance per deployment; set DATABASE_URL and optionally SWEEP_INTERVAL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"

	"session-control-plane/core/internal/config"
	"session-control-plane/core/internal/db"
	sessionrepo "session-control-plane/core/internal/session/repository"
	"session-control-plane/core/internal/session/service"
	"session-control-plane/core/internal/signingkey"
	signingkeyrepo "session-control-plane/core/internal/signingkey/repository"
	"session-control-plane/core/internal/telemetry"
	telemetryotel "session-control-plane/core/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("sweeper: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName+"-sweeper", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	keyRepo := signingkeyrepo.NewPostgresRepository(database)
	accessKeys := signingkey.NewStoreBacked(keyRepo, "access_token_signing_key", cfg.SigningKeyUpdateInterval())
	refreshKeys := signingkey.NewStoreBacked(keyRepo, "refresh_token_key", 0)

	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)
	svc := service.NewService(
		sessionrepo.NewPostgresRepository(database),
		accessKeys, refreshKeys,
		cfg.AccessTokenValidity(), cfg.RefreshTokenValidity(),
		cfg.AntiCSRFEnabled, cfg.BlacklistingEnabled,
		emitter, nil,
	)

	meter := providers.MeterProvider.Meter("sessioncore.sweeper")
	swept, err := meter.Int64Counter("sessions_swept_total",
		metric.WithDescription("Expired session records removed by the sweeper"))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("sweeper: shutting down...")
		cancel()
	}()

	interval := cfg.SweepEvery()
	log.Printf("sweeper: removing expired sessions every %s", interval)

	sweep := func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, cfg.TxTimeout())
		defer sweepCancel()
		n, err := svc.RemoveExpiredSessions(sweepCtx)
		if err != nil {
			log.Printf("sweeper: sweep failed: %v", err)
			return
		}
		if n > 0 {
			swept.Add(sweepCtx, n)
			log.Printf("sweeper: removed %d expired sessions", n)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
