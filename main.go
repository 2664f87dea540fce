package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/breez/payments-rest-api/internal/api"
	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/kafka"
	"github.com/breez/payments-rest-api/internal/logger"
	"github.com/breez/payments-rest-api/internal/shopify"
	shopify_api "github.com/breez/payments-rest-api/internal/shopify/api"
	shopify_db "github.com/breez/payments-rest-api/internal/shopify/db"
	rediswrap "github.com/breez/payments-rest-api/internal/shopify/redis"
	"github.com/breez/payments-rest-api/internal/webhook"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Payments REST API initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()

	manager := breez.NewManager(cfg.Breez, breez.ConnectSDK, log)

	// Fan-out targets for payment state transitions.
	var notifiers webhook.MultiNotifier

	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, webhook.NewSender(cfg.Webhook, log))
		log.Info("WEBHOOK", "Webhook sender initialized for "+cfg.Webhook.URL)
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka, log)
		notifiers = append(notifiers, producer)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	var shopifyHandler *shopify_api.Handler
	if cfg.Shopify.Enabled {
		store, err := shopify_db.Open(cfg.Shopify.DBPath)
		if err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to open shopify order store: %v", err))
		}
		defer store.Bun.Close()
		log.Info("DATABASE", "✅ Shopify order store ready at "+cfg.Shopify.DBPath)

		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
		}
		defer redisClient.Close()
		log.Info("DATABASE", "✅ Redis connection successful to "+cfg.Redis.Addr)

		shopClient := shopify.NewClient(cfg.Shopify, log)
		lock := rediswrap.NewLock(redisClient, cfg.Shopify.LockTTL, log)
		service := shopify.NewService(store, shopClient, lock, func() (shopify.PaymentProvider, error) {
			return manager.Handler()
		}, log)

		notifiers = append(notifiers, service)
		shopifyHandler = &shopify_api.Handler{Service: service, Verifier: shopClient}
		log.Info("APP", "Shopify integration enabled")
	}

	if len(notifiers) > 0 {
		manager.SetNotifier(notifiers)
	}

	// Connect eagerly so the first request does not pay the startup
	// cost. A failure here is not fatal: the watchdog keeps retrying.
	if _, err := manager.Handler(); err != nil {
		log.Warn("BREEZ", fmt.Sprintf("Initial engine connection failed, watchdog will retry: %v", err))
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	watchdog := breez.NewWatchdog(manager, cfg.Sync, log)
	go watchdog.Run(watchdogCtx)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	apiHandler := &api.Handler{Manager: manager, Log: log}
	apiHandler.Routes(r, cfg.Server.APIKey)
	log.Info("ROUTER", "Payment routes registered")

	if shopifyHandler != nil {
		r.Route("/shopify", shopifyHandler.Routes)
		log.Info("ROUTER", "Shopify routes registered under /shopify")
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", "🚀 Payments REST API running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopWatchdog()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Producer close failed: %v", err))
		}
	}

	manager.Disconnect()
	log.Info("APP", "✅ Payments REST API shutdown complete")
}
