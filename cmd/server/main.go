package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/chat-ticketing/internal/bot"
	"github.com/iliyamo/chat-ticketing/internal/config"
	"github.com/iliyamo/chat-ticketing/internal/database"
	"github.com/iliyamo/chat-ticketing/internal/dedup"
	"github.com/iliyamo/chat-ticketing/internal/handler"
	"github.com/iliyamo/chat-ticketing/internal/logger"
	"github.com/iliyamo/chat-ticketing/internal/media"
	"github.com/iliyamo/chat-ticketing/internal/middleware"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/queue"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/router"
	queue_publisher "github.com/iliyamo/chat-ticketing/internal/service"
	"github.com/iliyamo/chat-ticketing/internal/session"
	"github.com/iliyamo/chat-ticketing/internal/ticket"
	"github.com/iliyamo/chat-ticketing/internal/webhook"
)

func main() {
	// A missing .env is fine; the real environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it dedup falls back to memory and the
	// rate limiter and response cache are disabled.
	var rdb redis.Cmdable
	if client := config.NewRedisClient(config.LoadRedisConfig()); client != nil {
		rdb = client
		defer func() { _ = client.Close() }()
	}

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var deduper dedup.Deduper
	if rdb != nil {
		deduper = dedup.NewRedis(rdb, "", cfg.DedupTTL)
	} else {
		mem := dedup.NewMemory(cfg.DedupTTL)
		go mem.Run(ctx, time.Minute)
		deduper = mem
	}

	sessions := session.NewMemoryStore(cfg.SessionTTL)
	go sessions.Run(ctx, time.Minute)

	cloud := outbound.NewCloudClient(outbound.CloudConfig{
		BaseURL:       cfg.GraphBase,
		Version:       cfg.GraphVersion,
		PhoneNumberID: cfg.PhoneNumberID,
		Token:         cfg.WhatsAppToken,
		AppSecret:     cfg.AppSecret,
		MediaTimeout:  cfg.MediaTimeout,
	}, nil, log)
	if !cloud.Enabled() {
		log.Warn("PHONE_NUMBER_ID or WHATSAPP_TOKEN missing, outbound messages are only logged")
	}
	composer := outbound.NewComposer(cloud, cfg.SendTimeout, log)

	uploads, err := media.NewStore(cfg.UploadsDir, cfg.MediaBaseURL)
	if err != nil {
		log.Error("uploads dir", "error", err)
		os.Exit(1)
	}

	opts := ticket.Options{BaseURL: cfg.BaseURL, Brand: cfg.Brand, Location: cfg.Location, Logger: log}
	if cfg.QueueEnabled {
		opts.Publisher = &queue_publisher.TicketPublisher{URL: cfg.AMQPURL, Log: log}
		consumer := &queue.Consumer{URL: cfg.AMQPURL, LogDir: cfg.LogDir, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("ticket consumer stopped", "error", err)
			}
		}()
	}
	tickets := ticket.NewEngine(store, composer, opts)

	dispatcher := bot.New(bot.Config{
		Brand:                cfg.Brand,
		Admins:               cfg.Admins,
		SupportContact:       cfg.SupportContact,
		Location:             cfg.Location,
		BroadcastRate:        cfg.BroadcastRate,
		BroadcastConcurrency: cfg.BroadcastConcurrency,
	}, bot.Deps{
		Store:     store,
		Sessions:  sessions,
		Tickets:   tickets,
		Messenger: composer,
		Media:     cloud,
		Uploads:   uploads,
		Logger:    log,
	})

	gateway := webhook.New(webhook.Config{
		VerifyToken:    cfg.VerifyToken,
		AppSecret:      cfg.AppSecret,
		AllowUnsigned:  cfg.AllowUnsigned,
		ProcessTimeout: cfg.ProcessTimeout,
		ReplyTimeout:   cfg.SendTimeout,
	}, webhook.Deps{
		Dedup:       deduper,
		Bot:         dispatcher,
		Replier:     composer,
		Reader:      cloud,
		Logger:      log,
		BaseContext: context.WithoutCancel(ctx),
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURIPath: true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info("request", "method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	cacheCfg := config.LoadCacheConfig()
	eventsHandler := &handler.EventHandler{Store: store, Location: cfg.Location}
	if rdb != nil {
		eventsHandler.OnChange = func(ctx context.Context) {
			if err := middleware.PurgeCache(ctx, rdb, cacheCfg.Prefix); err != nil {
				log.Warn("purge event cache", "error", err)
			}
		}
	}

	router.RegisterRoutes(e)
	router.RegisterWebhook(e, &handler.WebhookHandler{Gateway: gateway})
	router.RegisterTickets(e, &handler.TicketHandler{Tickets: tickets},
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterEvents(e, eventsHandler, middleware.NewRedisCache(cacheCfg, rdb), middleware.AdminAuthConfig{
		Token:     cfg.AdminToken,
		TokenHash: cfg.AdminTokenHash,
		JWTSecret: cfg.JWTSecret,
		Phones:    cfg.Admins,
	})
	router.RegisterUploads(e, uploads.Dir)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver, "redis", rdb != nil)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	// Let in-flight webhook messages finish their replies.
	gateway.Wait()
}

// openStore picks the Message Store backend from STORE_DRIVER.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, func()) {
	if cfg.StoreDriver != "mysql" {
		log.Info("using in-memory store")
		return repository.NewMemoryStore(), func() {}
	}
	db, err := database.Open(ctx, database.Params{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		log.Error("db connect", "error", err)
		os.Exit(1)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.Error("db migrate", "error", err)
		os.Exit(1)
	}
	return repository.NewMySQLStore(db), func() { _ = db.Close() }
}
