package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterConfig carries the surface-level settings the router needs.
type RouterConfig struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	WidgetDir          string
}

// NewRouter wires the gateway's HTTP surface.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(newRateLimiter(cfg.RateLimitPerMinute).middleware)

	r.Get("/api/health", h.Health)
	r.Post("/api/chat", h.Chat)

	r.Get("/api/cart", h.GetCart)
	r.Post("/api/cart/add", h.CartAction)

	r.Route("/api/salesforce-cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Get("/count", h.SalesforceCartCount)
		r.Post("/add", h.SalesforceCartAdd)
		r.Post("/update", h.SalesforceCartUpdate)
		r.Post("/remove", h.SalesforceCartRemove)
	})

	r.Get("/api/media/salesforce/{mediaID}", h.Media)

	if cfg.WidgetDir != "" {
		fs := http.FileServer(http.Dir(cfg.WidgetDir))
		r.Handle("/widget/*", http.StripPrefix("/widget/", fs))
	}

	return otelhttp.NewHandler(r, "gateway")
}
