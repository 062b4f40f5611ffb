package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chowhub-be/internal/availability"
	"chowhub-be/internal/config"
	"chowhub-be/internal/db"
	"chowhub-be/internal/jobs"
	"chowhub-be/internal/logger"
	"chowhub-be/internal/middleware"
	"chowhub-be/internal/notify"
	"chowhub-be/internal/order"
	"chowhub-be/internal/payment"
	"chowhub-be/internal/payment/webhook"
	"chowhub-be/internal/product"
	"chowhub-be/internal/rest"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	notifier := notify.NewAsyncNotifier(notify.LogSink{})
	invalidator := notify.LogInvalidator{}

	productRepo := product.NewRepository(database)
	windowRepo := availability.NewRepository(database)

	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, productRepo, windowRepo, notifier, invalidator)

	gateway := payment.NewPaystackGateway(cfg.PaystackSecretKey, cfg.PaystackWebhookKey)
	paymentRepo := payment.NewRepository(database)
	paymentSvc := payment.NewService(
		paymentRepo, orderRepo, windowRepo, gateway, notifier, invalidator,
		payment.Options{
			Window:          cfg.PaymentWindow,
			AmountTolerance: cfg.AmountTolerance,
		},
	)

	leaseRepo := jobs.NewLeaseRepository(database)
	sweeper := payment.NewSweeper(
		paymentRepo, orderRepo, leaseRepo, notifier,
		cfg.SweepInterval, cfg.SweepBatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)

	mux := http.NewServeMux()
	rest.NewHandler(orderSvc, paymentSvc).Register(mux)

	webhookHandler := webhook.NewWebhookHandler(paymentSvc, paymentRepo, gateway)
	mux.HandleFunc("POST /webhook/paystack", webhookHandler.PaymentWebhookHandler)

	handler := logger.RequestIDMiddleware(
		logger.LoggingMiddleware(
			middleware.AuthMiddleware(
				middleware.RateLimitMiddleware(mux),
			),
		),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		logger.L().Info("shutting down")
		_ = srv.Shutdown(context.Background())
	}()

	logger.L().Info("server listening", zap.String("port", cfg.AppPort))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L().Fatal("server failed", zap.Error(err))
	}
}
