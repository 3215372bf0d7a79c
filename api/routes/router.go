package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/cart"
	couponcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/coupons"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	settlementcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/settlements"
	walletcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/wallet"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/settlements"
	"github.com/angelmondragon/marketplace-backend/internal/wallet"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

type redisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	pkgredis.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	cartService cart.Service,
	couponService coupons.Service,
	ordersSvc orders.Service,
	settlementsSvc settlements.Service,
	walletSvc wallet.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	paymentPolicy := middleware.NewRateLimitPolicy("payments", cfg.RateLimit.Window, cfg.RateLimit.PaymentLimit)
	walletPolicy := middleware.NewRateLimitPolicy("wallet", cfg.RateLimit.Window, cfg.RateLimit.WalletLimit)
	limitPayments := middleware.RateLimit(paymentPolicy, redisClient, logg)
	limitWallet := middleware.RateLimit(walletPolicy, redisClient, logg)
	adminOnly := middleware.RequireRole(logg, enums.UserRoleAdmin)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisClient,
		}))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if cfg.FeatureFlags.IdempotencyEnabled {
			r.Use(middleware.Idempotency(redisClient, logg))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(cartService, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartService, logg))
			r.Delete("/items/{variationId}", cartcontrollers.CartRemoveItem(cartService, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/", couponcontrollers.Create(couponService, logg))
			r.Post("/apply", couponcontrollers.Apply(couponService, logg))
			r.Patch("/{code}/revoke", couponcontrollers.Revoke(couponService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(limitPayments).Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))

			r.With(limitPayments).Patch("/payment", ordercontrollers.CompletePayment(ordersSvc, false, logg))
			r.With(adminOnly).Patch("/payment/admin", ordercontrollers.CompletePayment(ordersSvc, true, logg))

			r.Patch("/update-order/{storeOrderId}", ordercontrollers.UpdateOrderStatus(ordersSvc, logg))
			r.Patch("/update-delivery/{storeOrderId}", ordercontrollers.UpdateDeliveryStatus(ordersSvc, logg))
			r.Patch("/user/cancel/{storeOrderId}", ordercontrollers.CancelByUser(ordersSvc, logg))
			r.With(limitPayments).Patch("/refund/{storeOrderId}", ordercontrollers.Refund(ordersSvc, logg))

			r.Post("/settlestore", settlementcontrollers.Settle(settlementsSvc, logg))
			r.Get("/unsettled/{storeId}", settlementcontrollers.ListUnsettled(settlementsSvc, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/{settlementId}", settlementcontrollers.Detail(settlementsSvc, logg))
			r.Patch("/{settlementId}/processed", settlementcontrollers.MarkProcessed(settlementsSvc, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", walletcontrollers.Balance(walletSvc, logg))
			r.Get("/history", walletcontrollers.History(walletSvc, logg))
			r.With(limitWallet).Post("/withdrawals", walletcontrollers.RequestWithdrawal(walletSvc, logg))
			r.Get("/withdrawals", walletcontrollers.ListWithdrawals(walletSvc, logg))

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Patch("/withdrawals/{withdrawalId}/process", walletcontrollers.ProcessWithdrawal(walletSvc, logg))
				r.Patch("/withdrawals/{withdrawalId}/decline", walletcontrollers.DeclineWithdrawal(walletSvc, logg))
				r.Post("/bonus", walletcontrollers.GrantBonus(walletSvc, logg))
			})
		})
	})

	return r
}
