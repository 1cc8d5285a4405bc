package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-sync/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Sessions       Sessions
	Logger         *zap.Logger
	RequestTimeout time.Duration
	CORSOrigins    []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := logger.OrNop(cfg.Logger)
	cartHandler := NewCartHandler(cfg.Sessions, cfg.RequestTimeout, log)
	checkoutHandler := NewCheckoutHandler(cfg.Sessions, cfg.RequestTimeout, log)
	sessionHandler := NewSessionHandler(cfg.Sessions, cfg.RequestTimeout, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", SessionHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.Create)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.Sessions))

			r.Delete("/sessions/current", sessionHandler.Logout)
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/refresh", cartHandler.Refresh)
				r.Post("/discount", cartHandler.ApplyDiscount)
				r.Post("/items", cartHandler.AddItem)
				r.Post("/items/{product_id}/increment", cartHandler.Increment)
				r.Post("/items/{product_id}/decrement", cartHandler.Decrement)
				r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			})
			r.Post("/checkout", checkoutHandler.Checkout)
			r.Get("/orders/{order_id}", checkoutHandler.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "cart-sync")
}
