package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/billing"
	"github.com/iliyamo/parking-ticket-tracker/internal/clock"
	"github.com/iliyamo/parking-ticket-tracker/internal/config"
	"github.com/iliyamo/parking-ticket-tracker/internal/database"
	"github.com/iliyamo/parking-ticket-tracker/internal/handler"
	"github.com/iliyamo/parking-ticket-tracker/internal/logger"
	"github.com/iliyamo/parking-ticket-tracker/internal/middleware"
	"github.com/iliyamo/parking-ticket-tracker/internal/queue"
	"github.com/iliyamo/parking-ticket-tracker/internal/repository"
	"github.com/iliyamo/parking-ticket-tracker/internal/router"
	"github.com/iliyamo/parking-ticket-tracker/internal/service"
	"github.com/iliyamo/parking-ticket-tracker/internal/store"
)

func main() {
	cfg := config.Load()
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		zl.Fatal("invalid APP_TIMEZONE", zap.String("tz", cfg.Timezone), zap.Error(err))
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb == nil {
		zl.Warn("redis unavailable; rate limiting and QR cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}
	kv, closeStore := openStore(cfg, rdb, zl)
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	calc := billing.NewCalculator(loc, zl.Named("billing"))
	repos := repository.NewRegistry(kv, cfg.StoreNamespace, clk, zl.Named("tickets"))
	devices := repository.NewDeviceRepo(kv, cfg.StoreNamespace, clk)

	var events handler.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewAMQPPublisher(config.AMQPURL(), zl.Named("publisher"))
		consumer := &queue.Consumer{URL: config.AMQPURL(), LogDir: cfg.EventLogDir, Log: zl}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("ticket-closed consumer stopped", zap.Error(err))
			}
		}()
	}

	limits := middleware.NewRateLimits(config.LoadRateLimitConfig(), rdb, clk, zl.Named("ratelimit"))
	var qrCache echo.MiddlewareFunc
	if rdb != nil {
		qrCache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	router.RegisterRoutes(e)
	router.RegisterDevices(e, handler.NewDeviceHandler(cfg, devices, clk), limits.Login)
	router.RegisterTickets(e, handler.NewTicketHandler(repos, calc, clk, events, zl.Named("http")), cfg.JWTSecret, limits, qrCache)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

// openStore selects the key-value backend named by STORE_DRIVER.
func openStore(cfg config.Config, rdb *redis.Client, zl *zap.Logger) (store.Store, func()) {
	switch cfg.StoreDriver {
	case "memory":
		zl.Warn("using in-memory store; tickets are lost on restart")
		return store.NewMemory(), func() {}
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			zl.Fatal("mysql connect failed", zap.Error(err))
		}
		s := store.NewMySQL(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.EnsureSchema(ctx); err != nil {
			zl.Fatal("mysql schema", zap.Error(err))
		}
		return s, func() { _ = db.Close() }
	case "redis":
		if rdb == nil {
			zl.Fatal("STORE_DRIVER=redis but redis is unreachable")
		}
		return store.NewRedis(rdb), func() {}
	default:
		zl.Fatal("unknown STORE_DRIVER", zap.String("driver", cfg.StoreDriver))
		return nil, nil
	}
}
