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

	"github.com/maisonvoile/storefront-backend/config"
	"github.com/maisonvoile/storefront-backend/internal/app/controller"
	"github.com/maisonvoile/storefront-backend/internal/app/repository"
	"github.com/maisonvoile/storefront-backend/internal/app/service"
	"github.com/maisonvoile/storefront-backend/internal/cache"
	"github.com/maisonvoile/storefront-backend/internal/cart"
	"github.com/maisonvoile/storefront-backend/internal/db"
	"github.com/maisonvoile/storefront-backend/internal/middleware"
	"github.com/maisonvoile/storefront-backend/internal/router"
	"github.com/maisonvoile/storefront-backend/internal/scheduler"
	"github.com/maisonvoile/storefront-backend/internal/storage"
	"github.com/maisonvoile/storefront-backend/internal/websocket"
	"github.com/maisonvoile/storefront-backend/pkg/logger"
	redispkg "github.com/maisonvoile/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting storefront backend", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis backs the category cache and guest carts; without it both fall
	// back to process memory
	var tagCache cache.TagCache = cache.NewMemoryTagCache()
	var guestStore cart.GuestStore = cart.NewMemoryGuestStore()
	if cfg.Redis.Enabled {
		client, err := redispkg.Init(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer func() {
			if err := redispkg.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
		tagCache = cache.NewRedisTagCache(client)
		guestStore = cart.NewRedisGuestStore(client, cfg.Cart.GuestTTL)
	} else {
		logger.Warn("Redis disabled, using in-memory cache and guest carts", nil)
	}

	// Initialize repositories
	categoryRepo := repository.NewCategoryRepository(db.GetDB())
	productRepo := repository.NewProductRepository(db.GetDB())
	stockRepo := repository.NewStockRepository(db.GetDB())
	cartRepo := repository.NewCartRepository(db.GetDB())

	// Cart events reach every connection of the owner
	hub := websocket.NewHub()
	go hub.Run()

	cartManager := cart.NewManager(cartRepo, guestStore, stockRepo, hub)

	// Initialize services
	categoryService := service.NewCategoryService(categoryRepo, tagCache, cfg.Cache.CategoryTTL)
	cartService := service.NewCartService(cartManager, productRepo, stockRepo)

	// Uploads stay disabled without a bucket
	var presigner storage.Presigner
	if cfg.S3.Bucket != "" {
		s3Storage, err := storage.NewS3Storage(context.Background(), cfg.S3)
		if err != nil {
			logger.Error("Failed to initialize S3 storage, uploads disabled", err)
		} else {
			presigner = s3Storage
		}
	}

	// Initialize controllers
	categoryController := controller.NewCategoryController(categoryService)
	cartController := controller.NewCartController(cartService)
	cartEventsController := controller.NewCartEventsController(hub, cfg.CORS.AllowedOrigins)
	uploadController := controller.NewUploadController(presigner)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r := router.NewRouter(
		categoryController,
		cartController,
		cartEventsController,
		uploadController,
		authMiddleware,
		cfg,
	)
	engine := r.Setup()

	cartScheduler := scheduler.NewCartScheduler(cartManager, cartRepo, scheduler.CartJobsConfig{
		StockReconcileSpec: cfg.Cart.StockReconcileJob,
		EvictionSpec:       cfg.Cart.EvictionJob,
		MaxIdle:            cfg.Cart.SessionIdleTime,
	})
	if err := cartScheduler.Start(); err != nil {
		logger.Fatal("Failed to start cart scheduler", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	cartScheduler.Stop()

	// queued cart changes are written before the stores close
	if err := cartManager.Close(ctx); err != nil {
		logger.Error("Some carts could not be synced before shutdown", err, map[string]interface{}{
			"live_carts": cartManager.Len(),
		})
	}
	hub.Stop()

	logger.Info("Server stopped successfully")
}
