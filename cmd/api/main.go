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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/mongo"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"instance": instance.GetID()},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mongoClient, err := mongo.New(context.Background(), cfg.Mongo, logg)
	requireResource(logg, "mongo", err)
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			logg.Error(context.Background(), "error closing mongo", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	// Without credentials the server still boots; payment calls then
	// report the gateway as unconfigured.
	var gateway payments.Gateway
	if rzpClient, err := razorpay.New(cfg.Razorpay); err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "razorpay client disabled")
	} else {
		gateway = rzpClient
	}
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Gateway: gateway,
		Config:  cfg.Razorpay,
		Logger:  logg,
		Metrics: checkoutMetrics,
	})
	requireResource(logg, "payments service", err)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	productSvc, err := products.NewService(products.NewRepository(dbClient.DB()), dbClient, outboxSvc)
	requireResource(logg, "products service", err)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, productSvc)
	requireResource(logg, "orders service", err)

	usersSvc, err := users.NewService(users.NewRepository(dbClient.DB()))
	requireResource(logg, "users service", err)

	userCarts, err := cart.NewMongoStore(mongoClient.Carts(), logg)
	requireResource(logg, "cart store", err)
	guestCarts, err := cart.NewGuestStore(redisClient, cfg.Cart.GuestTTL, logg)
	requireResource(logg, "guest cart store", err)
	cartSvc, err := cart.NewService(userCarts, guestCarts, productSvc, logg)
	requireResource(logg, "cart service", err)

	attempts, err := checkout.NewRedisAttemptStore(redisClient)
	requireResource(logg, "checkout attempt store", err)
	checkoutSvc, err := checkout.NewService(checkout.Params{
		Carts:    cartSvc,
		Catalog:  productSvc,
		Profiles: usersSvc,
		Payments: paymentsSvc,
		Orders:   ordersSvc,
		Attempts: attempts,
		Locks:    redis.NewLockFactory(redisClient, cfg.Checkout.LockTTL),
		LockKey:  redisClient.CheckoutLockKey,
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	requireResource(logg, "checkout service", err)

	pingers := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
		"mongo":    mongoClient,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	handler := routes.NewRouter(
		cfg,
		logg,
		pingers,
		redisClient,
		metrics.NewHTTPMetrics(registry),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		routes.Services{
			Payments: paymentsSvc,
			Products: productSvc,
			Cart:     cartSvc,
			Checkout: checkoutSvc,
			Orders:   ordersSvc,
			Profiles: usersSvc,
		},
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to bootstrap "+resource, err)
	os.Exit(1)
}
