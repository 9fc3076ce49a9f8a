package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hezron-sketch/cafe-backend/internal/auth"
	"github.com/hezron-sketch/cafe-backend/internal/callback"
	"github.com/hezron-sketch/cafe-backend/internal/config"
	"github.com/hezron-sketch/cafe-backend/internal/database"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/internal/gateway"
	"github.com/hezron-sketch/cafe-backend/internal/handlers"
	"github.com/hezron-sketch/cafe-backend/internal/notification"
	"github.com/hezron-sketch/cafe-backend/internal/repository"
	"github.com/hezron-sketch/cafe-backend/internal/service"
	sharedHttp "github.com/hezron-sketch/cafe-backend/pkg/http"
	"github.com/hezron-sketch/cafe-backend/pkg/messaging"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}
	cfg.SetupLogging()

	logrus.Info("Cafe backend starting...")

	// Order store and catalog
	var (
		db      *sql.DB
		orders  service.OrderStore
		catalog service.Catalog
	)
	switch cfg.Store {
	case config.StoreMemory:
		logrus.Warn("Using in-memory order store, data is lost on restart")
		orders = repository.NewMemoryOrderRepository()
		catalog = repository.NewMemoryCatalog(defaultMenu()...)
	default:
		db, err = database.ConnectAndMigrate(cfg.Database)
		if err != nil {
			logrus.Fatalf("Database connection error: %v", err)
		}
		defer db.Close()
		orders = repository.NewOrderRepository(db)
		catalog = repository.NewCatalogRepository(db)
	}

	// Payment gateway
	var payments gateway.PaymentGateway
	if cfg.Mpesa.Mode == config.MpesaModeMock {
		logrus.Warn("Using mock M-Pesa gateway")
		payments = gateway.NewMockPaymentGateway(0)
	} else {
		payments = gateway.NewMpesaClient(gateway.MpesaConfig{
			BaseURL:        cfg.Mpesa.BaseURL,
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			ShortCode:      cfg.Mpesa.ShortCode,
			Passkey:        cfg.Mpesa.Passkey,
			CallbackURL:    cfg.Mpesa.CallbackURL,
			Timeout:        cfg.Mpesa.Timeout,
		})
	}

	// RabbitMQ connection; notifications degrade to log-only without it
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rabbitClient := messaging.NewRabbitMQClient(cfg.RabbitMQ)
	var (
		notifyPublisher  notification.Publisher
		anomalyPublisher callback.EventPublisher
	)
	if err := rabbitClient.Connect(); err != nil {
		logrus.WithError(err).Warn("RabbitMQ unavailable, notifications will only be logged")
	} else {
		defer rabbitClient.Close()
		publisher := messaging.NewPublisher(rabbitClient)
		notifyPublisher = publisher
		anomalyPublisher = publisher

		consumer := messaging.NewConsumer(rabbitClient, rabbitClient.AuditQueue(), "cafe-reconciliation")
		if err := consumer.ConsumeEvents(ctx, callback.AuditRoutingKeys, callback.Audit); err != nil {
			logrus.WithError(err).Warn("Reconciliation consumer not started")
		}
	}

	// Identity verifier
	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		logrus.Fatalf("Auth setup error: %v", err)
	}

	// Dependencies injection
	notifier := notification.NewNotifier(notifyPublisher, cfg.PublishRetries)
	orderService := service.NewOrderService(orders, catalog, payments, notifier, service.Options{
		Pricing:         domain.NewPricing(cfg.Pricing.DeliveryFee, cfg.Pricing.PromoCodes),
		ReverifyCatalog: cfg.CatalogReverify,
	})
	receiver := callback.NewReceiver(orderService, callback.NewEventRecorder(anomalyPublisher))

	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(orderService, receiver)

	// Fiber app setup
	app := setupFiberApp()

	// Routes setup
	handlers.SetupRoutes(app, orderHandler, paymentHandler, auth.Middleware(verifier))

	// Graceful shutdown setup
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logrus.Info("Cafe backend closing...")
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Error("Shutdown error")
		}
	}()

	logrus.Infof("Cafe backend working: http://localhost:%s", cfg.Port)

	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.WithError(err).Error("Server start error")
	}

	cancel()
	notifier.Wait()
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Cafe Backend v1.0",
		ErrorHandler: handlers.ErrorHandler,
	})

	// Middlewares
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Header: sharedHttp.RequestIDHeader}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID,Idempotency-Key",
	}))

	return app
}

// defaultMenu seeds the in-memory catalog for local runs.
func defaultMenu() []domain.MenuItem {
	return []domain.MenuItem{
		{ID: "espresso", Name: "Espresso", Price: 180, Available: true},
		{ID: "latte", Name: "Latte", Price: 250, Available: true},
		{ID: "chai", Name: "Masala Chai", Price: 150, Available: true},
		{ID: "mandazi", Name: "Mandazi", Price: 50, Available: true},
		{ID: "samosa", Name: "Beef Samosa", Price: 100, Available: true},
	}
}
