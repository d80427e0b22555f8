package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"railperf-gateway/internal/auth"
	"railperf-gateway/internal/cache"
	"railperf-gateway/internal/handlers"
	"railperf-gateway/internal/httpserver"
	"railperf-gateway/internal/metrics"
	"railperf-gateway/internal/notify"
	"railperf-gateway/internal/queue"
	"railperf-gateway/internal/station"
	"railperf-gateway/internal/store"
	"railperf-gateway/internal/upstream"
	"railperf-gateway/internal/worker"
	"railperf-gateway/pkg/logging/logging"
)

type Config struct {
	Port    string
	Backend string // "memory" or "redis"

	RedisAddr   string // cache + queue
	RedisDBAddr string // app store; defaults to RedisAddr

	HSPBaseURL string
	RailAPIKey string

	WorkerIntervalMS int
	CacheTTLHours    int
	SweepSchedule    string

	PublicDir    string
	StationsFile string

	Production bool
}

func LoadConfig() Config {
	redisAddr := getenv("REDIS_ADDR", "127.0.0.1:6379")
	return Config{
		Port:             getenv("PORT", "3000"),
		Backend:          getenv("CACHE_BACKEND", "memory"),
		RedisAddr:        redisAddr,
		RedisDBAddr:      getenv("REDIS_DB_ADDR", redisAddr),
		HSPBaseURL:       getenv("HSP_BASE_URL", "https://api1.raildata.org.uk/1010-historical-service-performance-_hsp_v1"),
		RailAPIKey:       os.Getenv("RAIL_API_KEY"),
		WorkerIntervalMS: getenvInt("WORKER_INTERVAL_MS", 1500),
		CacheTTLHours:    getenvInt("CACHE_TTL_HOURS", 24),
		SweepSchedule:    getenv("SWEEP_SCHEDULE", notify.DefaultSchedule),
		PublicDir:        getenv("PUBLIC_DIR", "public"),
		StationsFile:     getenv("STATIONS_FILE", "public/stations.json"),
		Production:       os.Getenv("ENV") == "production",
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	if cfg.RailAPIKey == "" {
		return fmt.Errorf("RAIL_API_KEY is required")
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.Backend),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("redis_db_addr", cfg.RedisDBAddr),
		zap.String("hsp_base_url", cfg.HSPBaseURL),
		zap.Int("worker_interval_ms", cfg.WorkerIntervalMS),
		zap.Bool("production", cfg.Production),
	)

	// ----- Redis clients (only if needed) -----
	var cacheRedis, dbRedis *redis.Client
	if cfg.Backend == "redis" {
		cacheRedis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		// Fail fast if Redis is misconfigured
		if err := cacheRedis.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))

		if cfg.RedisDBAddr == cfg.RedisAddr {
			dbRedis = cacheRedis
			logger.Warn("using the same redis instance for cache and storage")
		} else {
			dbRedis = redis.NewClient(&redis.Options{Addr: cfg.RedisDBAddr})
			if err := dbRedis.Ping(context.Background()).Err(); err != nil {
				logger.Error("storage redis connection failed", zap.Error(err))
				return err
			}
			logger.Info("storage redis connection established", zap.String("addr", cfg.RedisDBAddr))
		}
	}

	// ----- Result cache -----
	resultCache := cache.New(cache.Config{
		Backend: cfg.Backend,
		Prefix:  "railperf",
	}, cacheRedis)
	resultCache = cache.NewLoggingStore(resultCache)

	// ----- Job queue -----
	jobQueue := queue.New(queue.Config{
		Backend: cfg.Backend,
		Prefix:  "railperf",
	}, cacheRedis)

	// ----- App store -----
	appStore := store.New(store.Config{
		Backend: cfg.Backend,
	}, dbRedis)

	// ----- Upstream client -----
	hspClient, err := upstream.NewClient(upstream.Config{
		BaseURL: cfg.HSPBaseURL,
		APIKey:  cfg.RailAPIKey,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := hspClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Worker -----
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	w := worker.New(jobQueue, resultCache, hspClient, worker.Config{
		Interval: time.Duration(cfg.WorkerIntervalMS) * time.Millisecond,
		CacheTTL: time.Duration(cfg.CacheTTLHours) * time.Hour,
	}, logger)
	go w.Run(workerCtx)

	// ----- Sessions + handlers -----
	sessions := auth.NewSessionManager(appStore, auth.DefaultSessionTTL, cfg.Production)
	throttle := auth.NewLoginThrottle(5, 15*time.Minute, cfg.Production)

	stations, err := station.Load(cfg.StationsFile)
	if err != nil {
		logger.Warn("station directory load failed, using fallback",
			zap.String("file", cfg.StationsFile),
			zap.Error(err),
		)
	} else {
		logger.Info("station directory loaded", zap.Int("stations", stations.Len()))
	}

	searchHandler := handlers.NewSearchHandler(resultCache, jobQueue)

	h := httpserver.Handlers{
		Search:        searchHandler,
		Auth:          handlers.NewAuthHandler(appStore, sessions, throttle),
		Subscriptions: handlers.NewSubscriptionHandler(appStore),
		Preferences:   handlers.NewPreferencesHandler(appStore, sessions),
		Stations:      handlers.NewStationHandler(stations),
	}

	// ----- Subscription sweep -----
	sweeper := notify.NewSweeper(appStore, searchHandler, cfg.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	// ----- Router + HTTP server -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h, cfg.PublicDir)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("backend", cfg.Backend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	sweeper.Stop()
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
