package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/example/carecircle/internal/config"
	"github.com/example/carecircle/internal/database"
	"github.com/example/carecircle/internal/email"
	"github.com/example/carecircle/internal/handlers"
	"github.com/example/carecircle/internal/middleware"
	"github.com/example/carecircle/internal/push"
	"github.com/example/carecircle/internal/realtime"
	"github.com/example/carecircle/internal/routes"
	"github.com/example/carecircle/internal/services"
	"github.com/example/carecircle/internal/workers"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db    *gorm.DB
		store services.StateStore
	)
	if cfg.DatabaseURL != "" {
		db = database.Connect(cfg.DatabaseURL)
		store = database.NewBlobStore(db)
	} else {
		log.Warn("DATABASE_URL not set, state is kept in memory and payme is disabled")
		store = database.NewMemoryStore()
	}

	hub := realtime.NewHub(cfg.JWTSecret, log)
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, log)

	accounts, err := services.NewAccountService(ctx, store, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load accounts")
	}

	notifications, err := services.NewNotificationService(ctx, store, log, hub)
	if err != nil {
		log.WithError(err).Fatal("failed to load notifications")
	}
	if cfg.FirebaseCredentialsPath != "" {
		sink, err := push.NewFirebaseService(ctx, cfg.FirebaseCredentialsPath, accounts, log)
		if err != nil {
			log.WithError(err).Warn("push notifications disabled")
		} else {
			notifications.AddSink(sink)
		}
	}

	accounts.SetNotifier(notifications)
	if mailer, err := email.NewEmailService(cfg); err == nil {
		accounts.SetMailer(mailer)
	} else {
		log.WithError(err).Info("support ticket email disabled")
	}

	chats, err := services.NewChatService(ctx, store, log, notifications, services.ChatOptions{
		AutoReply:  cfg.ChatAutoReply,
		ReplyDelay: cfg.ChatAutoReplyDelay,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to load conversations")
	}
	chats.SetPublisher(hub)

	orders, err := services.NewOrderService(ctx, store, log, accounts, notifications, cfg.PalCompletionBonus)
	if err != nil {
		log.WithError(err).Fatal("failed to load orders")
	}
	orders.SetOpsNotifier(telegram)

	bookings, err := services.NewBookingService(ctx, store, log, accounts, notifications, chats)
	if err != nil {
		log.WithError(err).Fatal("failed to load gigs")
	}

	var payme *services.PaymeService
	if db != nil {
		payme = services.NewPaymeService(db, accounts, telegram, log, services.PaymeOptions{
			MerchantID:  cfg.PaymeMerchantID,
			CheckoutURL: cfg.PaymeCheckoutURL,
		})
	}

	chatLimiter := middleware.NewRateLimiter(cfg.ChatRatePerSecond, cfg.ChatRateBurst, log)

	wm := workers.NewWorkerManager(log)
	wm.RegisterWorker(workers.NewGigPollWorker(bookings, cfg.GigPollInterval))
	wm.RegisterWorker(workers.NewLimiterCleanupWorker(chatLimiter))
	if payme != nil {
		wm.RegisterWorker(workers.NewPaymeExpiryWorker(payme, log))
	}
	wm.Start()

	app := fiber.New(fiber.Config{
		AppName:      "CareCircle Backend",
		ErrorHandler: handlers.ErrorHandler,
		Immutable:    true,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, routes.Services{
		Accounts:      accounts,
		Notifications: notifications,
		Chats:         chats,
		Orders:        orders,
		Bookings:      bookings,
		Payme:         payme,
	}, cfg, chatLimiter, log)

	realtimeServer := &http.Server{
		Addr:              ":" + cfg.RealtimePort,
		Handler:           hub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.RealtimePort).Info("starting realtime server")
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("realtime server error")
		}
	}()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Warn("api shutdown error")
		}
		if err := realtimeServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("realtime shutdown error")
		}
	}()

	log.WithField("port", cfg.AppPort).Info("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.WithError(err).Fatal("fiber.Listen error")
	}
	<-shutdownDone

	wm.Stop()
	chats.Close()
	hub.Close()
	log.Info("server stopped")
}
