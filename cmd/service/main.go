package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"weatherpro/internal/alert"
	"weatherpro/internal/cache"
	"weatherpro/internal/config"
	httphandler "weatherpro/internal/http"
	"weatherpro/internal/observability"
	"weatherpro/internal/scheduler"
	"weatherpro/internal/service"
	"weatherpro/internal/store"
	"weatherpro/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.InitSchema(initCtx); err != nil {
		initCancel()
		logger.Fatal("schema", zap.Error(err))
	}
	initCancel()

	weatherClient, err := upstream.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var cacheStore cache.Store
	var memcacheCloser *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheRetention)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheStore = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheStore = cache.NewSQLStore(db)
		logger.Info("cache backend: sqlite")
	}
	weatherCache := cache.New(cacheStore, cfg.CacheTTL)

	evaluator := alert.NewEvaluator(db, logger)
	pipeline := service.NewPipeline(weatherClient, weatherCache, evaluator, logger, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	handler := httphandler.NewHandler(pipeline, weatherClient, db, logger, cfg.LocationMaxLength)
	handler.DBPing = db.Ping
	if memcacheCloser != nil {
		handler.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CORSMiddleware(cfg.CORSAllowedOrigin))
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/api/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.HandleFunc("/auth/register", handler.Register).Methods("POST")
	api.HandleFunc("/auth/login", handler.Login).Methods("POST")
	api.HandleFunc("/locations/save", handler.SaveLocation).Methods("POST")
	api.HandleFunc("/locations/{userId}", handler.GetUserLocations).Methods("GET")
	api.HandleFunc("/locations/{locationId}", handler.DeleteLocation).Methods("DELETE")
	api.HandleFunc("/alerts/create", handler.CreateAlert).Methods("POST")
	api.HandleFunc("/alerts/{userId}", handler.GetUserAlerts).Methods("GET")
	api.HandleFunc("/alerts/{alertId}", handler.DeleteAlert).Methods("DELETE")

	weatherRouter := api.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	weatherRouter.HandleFunc("/{location}", handler.GetWeather).Methods("GET")

	sweep := scheduler.New(pipeline, db, logger, cfg.RefreshInterval)
	if err := sweep.Start(); err != nil {
		logger.Fatal("refresh sweep", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	sweep.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	// Pending cache writes and alert sweeps finish before the store closes.
	pipeline.Drain()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
