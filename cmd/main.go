/*
Package main is the entry point for the dmchat server.

It loads configuration, initializes logging and metrics, wires the stores, the presence
registry, the connection gateway and the delivery pipeline, serves HTTP, and on SIGINT or
SIGTERM shuts down the listener before closing every live connection.
*/
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dmchat/internal/app/db"
	"dmchat/internal/app/delivery"
	"dmchat/internal/app/gateway"
	"dmchat/internal/app/message"
	"dmchat/internal/app/presence"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
	"dmchat/internal/handler"
	"dmchat/internal/metrics"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("image_storage", cfg.S3BucketName != "").
		Dur("ws_idle_timeout", cfg.WSIdleTimeout).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(reg)

	users, messages, pool := openStores(ctx, cfg)
	if pool != nil {
		defer pool.Close()
	}

	var images storage.StorageService
	var imageStore message.ImageStore
	storageCfg := storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3Region:          cfg.S3Region,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3PublicBaseURL:   cfg.S3PublicBaseURL,
	}
	if storageCfg.Enabled() {
		images, err = storage.NewStorageService(ctx, storageCfg)
		if err != nil {
			logx.Fatal(err, "Failed to initialize object storage")
		}
		imageStore = images
	} else {
		logx.Warn("Object storage not configured; image messages are disabled.")
	}

	registry := presence.NewRegistry(recorder)
	gw := gateway.NewGateway(
		registry,
		jwt.NewVerifier(cfg.JWTSecret, users),
		handler.NewUpgrader(cfg),
		gateway.Config{
			IdleTimeout:   cfg.WSIdleTimeout,
			SendQueueSize: cfg.WSSendQueueSize,
		},
		recorder,
	)
	pipeline := delivery.NewPipeline(registry, gw, recorder)
	service := message.NewService(messages, users, imageStore, pipeline, recorder)

	router := handler.Router(ctx, &handler.AppDeps{
		Config:   cfg,
		Users:    users,
		Messages: service,
		Gateway:  gw,
		Storage:  images,
		Gatherer: reg,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("dmchat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "HTTP server forced to shutdown")
	}

	// Hijacked websocket connections are not covered by server.Shutdown.
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Gateway did not drain before the deadline")
	}

	logx.Info("Server gracefully stopped.")
}

// openStores returns the user and message stores for the configured driver. The pool is
// nil for the in-memory driver.
func openStores(ctx context.Context, cfg *configs.AppConfig) (user.Store, message.Store, *pgxpool.Pool) {
	if cfg.StoreDriver == configs.StoreMemory {
		logx.Warn("Using in-memory stores; all data is lost on restart.")
		return user.NewMemoryStore(), message.NewMemoryStore(), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}

	return user.NewPostgresStore(pool), message.NewPostgresStore(pool), pool
}
