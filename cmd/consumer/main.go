// ja-notification-consumer
//
// Event-driven half of the notification pipeline. Consumes domain events
// from the Redis-stream event log, maintains the search-profile projection,
// runs job matching, creates notification records, and fans delivery out
// to the in-app and email channels.
//
// Also runs the hourly premium-expiry sweep and serves /health + /metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/bridge"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/config"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/consumer"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/db"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/identity"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/mailer"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/match"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/notification"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/projection"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[consumer] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[consumer] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[consumer] PostgreSQL: %v", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("[consumer] Schema: %v", err)
	}
	log.Println("[consumer] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[consumer] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[consumer] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[consumer] Redis connected ✓")

	// ── Pipeline wiring ──────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := consumer.NewMetrics(registry)

	projections := projection.NewStore(pool)
	notifications := notification.NewStore(pool)
	engine := match.NewEngine(projections)
	directory := identity.NewClient(cfg.IdentityBaseURL, time.Duration(cfg.IdentityTimeoutMS)*time.Millisecond)
	mail := mailer.NewSMTPSender(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	fanout := bridge.New(rdb)

	handlers := consumer.NewHandlers(projections, notifications, engine, directory, fanout, mail, metrics)
	// Stable per-replica name: a restart reclaims its own pending entries.
	consumerName, err := os.Hostname()
	if err != nil || consumerName == "" {
		consumerName = fmt.Sprintf("consumer-%s", uuid.NewString()[:8])
	}
	eventConsumer := consumer.New(rdb, handlers, metrics, consumerName, cfg.EventMaxRetries)

	go func() {
		if err := eventConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("[consumer] Event consumer: %v", err)
		}
	}()

	// ── Premium-expiry sweep ─────────────────────────────────────────────────
	// Safety net behind the subscription.expired event: flips premium off on
	// projections whose expiry timestamp has passed.
	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %dh", cfg.PremiumSweepHours), func() {
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
		defer sweepCancel()
		n, err := projections.ExpirePremium(sweepCtx)
		if err != nil {
			log.Printf("[consumer] Premium sweep error: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[consumer] Premium sweep: %d projections expired", n)
		}
	})
	if err != nil {
		log.Fatalf("[consumer] Cron: %v", err)
	}
	c.Start()
	defer c.Stop()

	// ── HTTP server (health + metrics) ───────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ConsumerPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[consumer] v%s listening on :%s", version, cfg.ConsumerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[consumer] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[consumer] Shutting down…")
	cancel() // stops the event consumer; unacked entries are reclaimed on next start

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[consumer] Shutdown error: %v", err)
	}
	log.Println("[consumer] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "ja-notification-consumer",
		"version": version,
	})
}
