package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/logger"
	"storefront/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	//.envは無くてもよい
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	a, err := app.Build(cfg, zl)
	if err != nil {
		zl.Fatal("failed to build app", zap.Error(err))
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	//商品イベント → カタログキャッシュ破棄
	go a.RunSubscribers(ctx)

	//Handler生成
	srv := server.New(cfg, zl, server.Handlers{
		Health:       handler.NewHealthHandler(),
		Product:      handler.NewProductHandler(a.Products, a.Discounts),
		Cart:         handler.NewCartHandler(a.Cart, cfg.IsProduction()),
		Order:        handler.NewOrderHandler(a.Orders, cfg.IsProduction()),
		AdminProduct: handler.NewAdminProductHandler(a.Products, a.Discounts),
		AdminImage:   handler.NewAdminImageHandler(a.Reconcile),
	})

	//Server起動
	go func() {
		if err := srv.Start(); err != nil {
			zl.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		zl.Error("server shutdown", zap.Error(err))
	}
}
