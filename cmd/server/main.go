package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/availability"
	"github.com/iliyamo/market-permanences/internal/config"
	"github.com/iliyamo/market-permanences/internal/database"
	"github.com/iliyamo/market-permanences/internal/handler"
	"github.com/iliyamo/market-permanences/internal/metrics"
	"github.com/iliyamo/market-permanences/internal/middleware"
	"github.com/iliyamo/market-permanences/internal/queue"
	"github.com/iliyamo/market-permanences/internal/repository"
	"github.com/iliyamo/market-permanences/internal/router"
	"github.com/iliyamo/market-permanences/internal/service"
	"github.com/iliyamo/market-permanences/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	log := logrus.StandardLogger()

	params := database.Params{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}
	if cfg.MigrateOnStart {
		if err := database.RunMigrations(params.MigrationURL()); err != nil {
			logrus.Fatalf("migrations: %v", err)
		}
		logrus.Info("migrations applied")
	}
	db, err := database.Open(params)
	if err != nil {
		logrus.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logrus.Warn("redis unavailable, rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	hooks := service.Hooks{Metrics: collector, Cache: cache}
	if cfg.EventsEnabled {
		pub, err := queue.NewPublisher(cfg.RabbitURL)
		if err != nil {
			logrus.WithError(err).Warn("event publisher unavailable, events disabled")
		} else {
			defer pub.Close()
			hooks.Events = pub
		}
	}
	if cfg.EventsConsumerEnabled {
		go func() {
			if err := queue.StartRegistrationConsumer(ctx, cfg.RabbitURL, cfg.EventsLogDir, log); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("events consumer stopped")
			}
		}()
	}

	slotRepo := repository.NewSlotRepo(db)
	regRepo := repository.NewRegistrationRepo(db)
	userRepo := repository.NewUserRepo(db)
	hoursRepo := repository.NewOpeningHoursRepo(db)

	engine := availability.New(cfg.Location())
	regSvc := service.NewRegistrationService(slotRepo, regRepo, userRepo, engine, hooks)
	calSvc := service.NewCalendarService(slotRepo, regRepo, userRepo, engine)
	slotSvc := service.NewSlotService(slotRepo, hoursRepo, cfg.DefaultSlotCap, hooks)
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.SessionTTL, cfg.BcryptCost)

	renderer, err := web.NewRenderer()
	if err != nil {
		logrus.Fatalf("templates: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log, collector))
	e.Use(middleware.Session(cfg.JWTSecret, cfg.CookieSecure))
	if cfg.CSRFEnabled {
		e.Use(middleware.CSRF(cfg.CSRFAuthKey(), cfg.CookieSecure))
	}

	base := handler.Base{Flash: web.NewFlashes(cfg.FlashHashKey(), cfg.CookieSecure), Log: log}
	router.Register(e, router.Handlers{
		Calendar:      handler.NewCalendarHandler(base, calSvc),
		Registrations: handler.NewRegistrationHandler(base, regSvc),
		Admin:         handler.NewAdminHandler(base, calSvc, regSvc, slotSvc),
		Auth:          handler.NewAuthHandler(base, authSvc, cfg.CookieSecure),
		Health:        handler.Health(db),
		Metrics:       metrics.Handler(reg),
		RateLimit:     middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Cache:         cache,
		Users:         userRepo,
	})

	addr := ":" + cfg.Port
	go func() {
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "tz": cfg.TZ}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("shutdown")
	}
}
