package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/payments"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Services bundles the domain services the router exposes.
type Services struct {
	Payments payments.Service
	Products products.Service
	Cart     cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Profiles users.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	idempotencyStore redis.IdempotencyStore,
	httpMetrics *metrics.HTTPMetrics,
	metricsHandler http.Handler,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// Payment endpoints answer every method so non-POST calls get their 405 body.
	r.HandleFunc("/createorder", paymentcontrollers.CreateOrder(svc.Payments, logg))
	r.HandleFunc("/verifypayment", paymentcontrollers.VerifyPayment(svc.Payments, logg))

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.Guest(logg, cfg.Cart.GuestTTL))
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(svc.Products, logg))
		r.Get("/{productID}", controllers.GetProduct(svc.Products, logg))
		r.Get("/{productID}/related", controllers.RelatedProducts(svc.Products, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.Guest(logg, cfg.Cart.GuestTTL))
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Get("/", cartcontrollers.Get(svc.Cart, logg))
			r.Delete("/", cartcontrollers.Clear(svc.Cart, logg))
			r.Post("/items", cartcontrollers.AddItem(svc.Cart, logg))
			r.Patch("/items", cartcontrollers.SetQuantity(svc.Cart, logg))
			r.Delete("/items", cartcontrollers.RemoveItem(svc.Cart, logg))
		})
		r.With(middleware.Auth(cfg.JWT, logg)).Post("/merge", cartcontrollers.Merge(svc.Cart, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutcontrollers.Status(svc.Checkout, logg))
			r.With(idempotent).Post("/start", checkoutcontrollers.Start(svc.Checkout, logg))
			r.With(idempotent).Post("/confirm", checkoutcontrollers.Confirm(svc.Checkout, logg))
			r.Post("/fail", checkoutcontrollers.Fail(svc.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderID}", ordercontrollers.Detail(svc.Orders, logg))
		})

		r.Get("/profile", controllers.GetProfile(svc.Profiles, logg))
		r.Put("/profile", controllers.UpdateProfile(svc.Profiles, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Get("/ping", controllers.AdminPing())

		r.With(idempotent).Post("/products", controllers.AdminCreateProduct(svc.Products, logg))
		r.With(idempotent).Put("/products/{productID}/stock", controllers.AdminSetStock(svc.Products, logg))
		r.Get("/orders", ordercontrollers.AdminList(svc.Orders, logg))
		r.With(idempotent).Patch("/orders/{orderID}/status", ordercontrollers.AdminUpdateStatus(svc.Orders, logg))
	})

	return r
}
