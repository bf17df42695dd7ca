package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
)

// Services bundles the use cases exposed over HTTP.
type Services struct {
	Carts     *service.CartService
	Orders    *service.OrderService
	Payments  *service.PaymentService
	Delivery  *service.DeliveryService
	Catalog   *service.CatalogService
	Addresses *service.AddressService
}

type HTTPHandler struct {
	svc     Services
	tokens  TokenParser
	probes  []Probe
	metrics *metrics.ServerMetrics
	logger  *slog.Logger
}

func NewHTTPHandler(svc Services, tokens TokenParser, probes []Probe, m *metrics.ServerMetrics, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, tokens: tokens, probes: probes, metrics: m, logger: logger}
}

// Routes builds the full router: /v1 API, /health and /metrics.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(observe(h.metrics))
	}
	r.Use(limitBody)

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// Gateway-facing routes authenticate by signature or checkout token.
		r.Post("/payment/webhook", h.PaymentWebhook)
		r.Get("/payment/{orderId}/{auth}", h.CompleteCheckout)
		r.Post("/payment/{orderId}/{auth}", h.CompleteCheckout)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.ListCart)
				r.Post("/", h.AddToCart)
				r.Patch("/", h.SubtractFromCart)
				r.Delete("/", h.ClearCart)
				r.Post("/{id}", h.UpdateCart)
				r.Delete("/{id}", h.DeleteCartItem)
				r.With(h.adminOnly).Post("/{id}/delivered", h.MarkCartLineDelivered)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Post("/", h.CreateOrder)
				r.Get("/{id}", h.GetOrder)
				r.Get("/{id}/verify", h.VerifyOrderPayment)
				r.With(h.adminOnly).Post("/{id}/delivered", h.MarkOrderDelivered)
			})

			r.Post("/payment/{orderId}", h.InitiateCheckout)

			r.With(h.adminOnly).Post("/products", h.CreateProduct)
			r.With(h.adminOnly).Patch("/products/{id}", h.UpdateProduct)
			r.With(h.adminOnly).Delete("/products/{id}", h.DeleteProduct)
			r.With(h.adminOnly).Get("/products/{id}/logs", h.ListProductCredentials)
			r.With(h.adminOnly).Post("/products/{id}/logs", h.AddCredentials)

			r.Get("/logs", h.ListMyCredentials)
			r.With(h.adminOnly).Patch("/logs/{id}", h.UpdateCredential)
			r.With(h.adminOnly).Delete("/logs/{id}", h.DeleteCredential)

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", h.ListAddresses)
				r.Post("/", h.CreateAddress)
				r.Get("/{id}", h.GetAddress)
				r.Patch("/{id}", h.UpdateAddress)
				r.Put("/{id}", h.UpdateAddress)
				r.Delete("/{id}", h.DeleteAddress)
			})
		})
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for _, p := range h.probes {
		if err := p.Check(ctx); err != nil {
			status[p.Name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[p.Name] = "ok"
	}
	writeJSON(w, code, status)
}
