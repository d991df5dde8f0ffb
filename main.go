package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubhambandhovar/medszop-backend/cart"
	"github.com/shubhambandhovar/medszop-backend/catalog"
	"github.com/shubhambandhovar/medszop-backend/controllers"
	"github.com/shubhambandhovar/medszop-backend/database"
	"github.com/shubhambandhovar/medszop-backend/gateway"
	"github.com/shubhambandhovar/medszop-backend/kafka"
	"github.com/shubhambandhovar/medszop-backend/logger"
	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/repository"
	"github.com/shubhambandhovar/medszop-backend/routes"
	"github.com/shubhambandhovar/medszop-backend/sender"
	"github.com/shubhambandhovar/medszop-backend/services"
	"github.com/shubhambandhovar/medszop-backend/users"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	// Postgres holds orders, payments, refunds and the email outbox.
	db, err := database.ConnectPostgres(database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		DBName:   cfg.PostgresDB,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		SSLMode:  cfg.PostgresSSLMode,
		TimeZone: cfg.PostgresTimeZone,
	})
	if err != nil {
		zapLogger.Fatal("Failed to connect to postgres", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusEntry{},
		&models.Payment{},
		&models.Refund{},
		&models.EmailOutbox{},
	); err != nil {
		zapLogger.Fatal("Migration failed", zap.Error(err))
	}

	// Mongo holds the users, medicines and pharmacies collections.
	mongoClient, mongoDB, err := database.ConnectMongo(cfg.MongoURL, cfg.MongoDB)
	if err != nil {
		zapLogger.Fatal("Failed to connect to mongo", zap.Error(err))
	}
	defer database.CloseMongo(mongoClient) //nolint:errcheck

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	var events kafka.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = producer
	} else {
		zapLogger.Warn("KAFKA_BROKERS not set, order events disabled")
	}

	var emailSender sender.EmailSender
	if cfg.SMTPHost != "" {
		emailSender, err = sender.NewMailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
		if err != nil {
			zapLogger.Fatal("Failed to init mail sender", zap.Error(err))
		}
	} else {
		zapLogger.Warn("SMTP_HOST not set, outbox emails will accumulate unsent")
	}

	// Repositories and stores
	orderRepo := repository.NewGormOrderRepository(db)
	paymentRepo := repository.NewGormPaymentRepo(db)
	outboxRepo := repository.NewGormOutboxRepo(db)
	userStore := users.NewMongoStore(mongoDB)
	pharmacyStore := catalog.NewMongoPharmacyStore(mongoDB)
	cartRepo := cart.NewRedisRepository(redisClient)

	// Price resolution checks the medicines catalog first, then pharmacy
	// inventories.
	resolver := catalog.NewChainSource(
		catalog.NewMongoCatalogSource(mongoDB),
		catalog.NewMongoPharmacySource(mongoDB),
	)

	notifier := services.NewOutboxNotifier(orderRepo, outboxRepo, userStore, pharmacyStore, zapLogger)

	orderService := services.NewOrderService(orderRepo, cartRepo, userStore, resolver, notifier, events, zapLogger)
	statusService := services.NewStatusService(orderRepo, notifier, events, cfg.StrictTransitions, zapLogger)

	razorpay := gateway.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	paymentService := services.NewPaymentService(
		orderRepo, paymentRepo, razorpay,
		cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret,
		notifier, events, zapLogger,
	)

	orderController := controllers.NewOrderController(orderService, statusService, cfg.ReturnWindow, cfg.Env)
	paymentController := controllers.NewPaymentController(paymentService, cfg.Env)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if emailSender != nil {
		worker := services.NewOutboxWorker(outboxRepo, emailSender, cfg.OutboxInterval, zapLogger)
		go worker.Run(workerCtx)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.Register(r, orderController, paymentController, []byte(cfg.JWTSecret), zapLogger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Order service started", zap.String("port", cfg.Port))
	<-quit
	zapLogger.Info("Shutting down...")

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited cleanly")
}
