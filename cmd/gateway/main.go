// ja-notification-gateway
//
// Client-facing half of the notification pipeline. Serves the notification
// query API (list, unread count, mark read) and holds the WebSocket
// connections realtime notifications are pushed over. Subscribes to the
// Redis pub/sub fan-out channel so any gateway replica can serve any
// recipient's connections.
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

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/bridge"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/config"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/db"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/gateway"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/notification"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[gateway] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[gateway] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[gateway] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[gateway] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[gateway] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[gateway] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[gateway] Redis connected ✓")

	// ── WebSocket registry + bridge subscription ─────────────────────────────
	registry := gateway.NewRegistry()
	wsServer := gateway.NewServer(registry)

	sub, err := bridge.New(rdb).Subscribe(ctx, func(m bridge.Message) {
		wsServer.Push(m.RecipientID, m.Notification)
	})
	if err != nil {
		log.Fatalf("[gateway] Bridge subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	log.Println("[gateway] Subscribed to realtime fan-out ✓")

	heartbeatDone := make(chan struct{})
	go wsServer.RunHeartbeat(heartbeatDone)
	defer close(heartbeatDone)

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ws/notifications", wsServer.HandleWS)

	h := notification.NewHandler(notification.NewStore(pool))
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.GatewayPort),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket connections.
	}

	go func() {
		log.Printf("[gateway] v%s listening on :%s", version, cfg.GatewayPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[gateway] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[gateway] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[gateway] Shutdown error: %v", err)
	}
	log.Println("[gateway] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "ja-notification-gateway",
		"version": version,
	})
}
