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
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/api/routes"
	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/settlements"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/internal/wallet"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/idgen"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
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
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipeline := metrics.NewPipelineMetrics(registry)

	conn := dbClient.DB()
	ids, err := idgen.New(cfg.Marketplace.IDMaxAttempts, nil)
	exitOnErr(logg, "id generator", err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	storeRepo := stores.NewRepository(conn)
	catalog := product.NewRepository(conn)

	cartService, err := cart.NewService(cart.NewRepository(conn), catalog)
	exitOnErr(logg, "cart service", err)

	couponRepo := coupons.NewRepository(conn)
	couponService, err := coupons.NewService(couponRepo, cartService, storeRepo, ids)
	exitOnErr(logg, "coupon service", err)

	walletService, err := wallet.NewService(wallet.NewRepository(conn), dbClient, emitter, wallet.Options{
		RegistrationBonus: cfg.Marketplace.RegistrationBonus,
		Metrics:           pipeline,
		Logger:            logg,
	})
	exitOnErr(logg, "wallet service", err)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:            orders.NewRepository(conn),
		Tx:              dbClient,
		Carts:           cartService,
		Coupons:         couponService,
		CouponRepo:      couponRepo,
		Catalog:         catalog,
		Stores:          storeRepo,
		Addresses:       address.NewRepository(conn),
		Wallet:          walletService,
		IDs:             ids,
		Outbox:          emitter,
		Shipping:        orders.FlatShipping{PerStore: cfg.Marketplace.ShippingPerStore},
		Tax:             orders.NoTax{},
		Metrics:         pipeline,
		Logger:          logg,
		GuaranteePeriod: cfg.Marketplace.GuaranteePeriod(),
	})
	exitOnErr(logg, "orders service", err)

	settlementService, err := settlements.NewService(settlements.ServiceParams{
		Repo:            settlements.NewRepository(conn),
		Tx:              dbClient,
		Stores:          storeRepo,
		IDs:             ids,
		Outbox:          emitter,
		Metrics:         pipeline,
		Logger:          logg,
		GuaranteePeriod: cfg.Marketplace.GuaranteePeriod(),
	})
	exitOnErr(logg, "settlement service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			metrics.NewHTTPMetrics(registry),
			cartService,
			couponService,
			ordersService,
			settlementService,
			walletService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-runCtx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	var closeErr error
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		closeErr = multierr.Append(closeErr, err)
	}
	cancel()
	closeErr = multierr.Append(closeErr, redisClient.Close())
	closeErr = multierr.Append(closeErr, dbClient.Close())
	if closeErr != nil {
		for _, err := range multierr.Errors(closeErr) {
			logg.Error(ctx, "error during shutdown", err)
		}
		exitCode = 1
	}
	os.Exit(exitCode)
}

func exitOnErr(logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(context.Background(), "component", component), "failed to wire component", err)
	os.Exit(1)
}
