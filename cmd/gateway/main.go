package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nareda9819/easymart-v2-sub000/internal/analytics"
	"github.com/nareda9819/easymart-v2-sub000/internal/assistant"
	"github.com/nareda9819/easymart-v2-sub000/internal/cache"
	"github.com/nareda9819/easymart-v2-sub000/internal/chat"
	"github.com/nareda9819/easymart-v2-sub000/internal/config"
	"github.com/nareda9819/easymart-v2-sub000/internal/enrich"
	"github.com/nareda9819/easymart-v2-sub000/internal/httpapi"
	"github.com/nareda9819/easymart-v2-sub000/internal/salesforce"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	sfClient := salesforce.NewClient(salesforce.Config{
		LoginURL:   cfg.SalesforceLoginURL,
		BaseURL:    cfg.SalesforceBaseURL,
		SiteURL:    cfg.SalesforceSiteURL,
		APIVersion: cfg.SalesforceAPIVersion,
		ClientID:   cfg.SalesforceClientID,
		PrivateKey: cfg.SalesforcePrivateKey,
		Username:   cfg.SalesforceUsername,
		Password:   cfg.SalesforcePassword,
		Timeout:    cfg.RequestTimeout,
	}, logger)

	products := salesforce.NewProductResolver(sfClient, logger)
	media := salesforce.NewMediaResolver(sfClient, logger)
	carts := salesforce.NewCartAdapter(sfClient, logger)

	var snapshots cache.SnapshotCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		snapshots = cache.NewRedisCache(rdb, cfg.CacheTTL)
		logger.Info("using redis snapshot cache", zap.String("addr", cfg.RedisAddr))
	} else {
		snapshots = cache.NewMemoryCache(cfg.CacheTTL)
	}

	enricher := enrich.NewService(products, snapshots, logger)
	bridge := assistant.NewClient(cfg.AssistantBaseURL, cfg.AssistantTimeout, logger)

	events := analytics.NewEmitter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer events.Close()

	chatSvc := chat.NewService(chat.NewKeywordDetector(), products, bridge, events, logger)

	handlers := httpapi.NewHandlers(chatSvc, carts, enricher, media, bridge, events, httpapi.HealthInfo{
		SalesforceConfigured: sfClient.Configured(),
		AssistantConfigured:  bridge.Configured(),
		RedisEnabled:         cfg.RedisAddr != "",
		AnalyticsEnabled:     events.Enabled(),
	}, logger)

	router := httpapi.NewRouter(handlers, httpapi.RouterConfig{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.AssistantTimeout + 5*time.Second,
		WidgetDir:          cfg.WidgetDir,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AssistantTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("gateway starting",
			zap.String("port", cfg.HTTPPort),
			zap.Bool("salesforce_configured", sfClient.Configured()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
