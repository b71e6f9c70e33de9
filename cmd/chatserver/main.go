package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatserver/internal/v1/config"
	"chatserver/internal/v1/health"
	"chatserver/internal/v1/logging"
	"chatserver/internal/v1/metrics"
	"chatserver/internal/v1/middleware"
	"chatserver/internal/v1/room"
	"chatserver/internal/v1/server"
	"chatserver/internal/v1/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()

	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "chatserver", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logging.Warn(ctx, "tracer provider shutdown failed", zap.Error(err))
				}
			}()
		}
	}

	catalog, err := room.LoadCatalog(cfg.RoomCatalogPath)
	if err != nil {
		logging.Fatal(ctx, "failed to load room catalog", zap.Error(err))
	}
	directory, err := room.NewDirectory(catalog)
	if err != nil {
		logging.Fatal(ctx, "failed to build room directory", zap.Error(err))
	}
	metrics.ActiveRooms.Set(float64(directory.Len()))
	logging.Info(ctx, "room catalog loaded", zap.Int("rooms", directory.Len()))

	acceptor := server.NewAcceptor(":"+cfg.Port, directory)

	chatCtx, cancelChat := context.WithCancel(ctx)
	chatDone := make(chan error, 1)
	go func() { chatDone <- acceptor.Run(chatCtx) }()

	adminRouter := gin.New()
	adminRouter.Use(gin.Recovery(), middleware.CorrelationID())
	adminRouter.Use(cors.New(cors.DefaultConfig()))

	healthHandler := health.NewHandler(acceptor)
	adminRouter.GET("/health/live", healthHandler.Liveness)
	adminRouter.GET("/health/ready", healthHandler.Readiness)
	adminRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	adminSrv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminRouter,
	}
	go func() {
		logging.Info(ctx, "admin server starting", zap.String("addr", cfg.AdminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "admin server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logging.Info(ctx, "shutdown signal received")
	case err := <-chatDone:
		if err != nil {
			logging.Fatal(ctx, "chat acceptor exited unexpectedly", zap.Error(err))
		}
	}

	cancelChat()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(ctx, "admin server forced to shutdown", zap.Error(err))
	}

	select {
	case <-chatDone:
	case <-time.After(cfg.ShutdownTimeout):
		logging.Warn(ctx, "chat acceptor did not exit before shutdown timeout")
	}

	logging.Info(ctx, "chatserver exiting")
}
