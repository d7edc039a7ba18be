/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends
  5. Auth:       JWT bearer tokens, or X-Actor when no secret is set
                 (/api only; /metrics and /healthz are open)

ROUTE GROUPS:
  /api/ingredients/*    Ingredients, balances, ledger history
  /api/stock/*          Stock queries and transfers
  /api/foods/*          Foods, recipes, availability
  /api/sales/*          Sales and tickets
  /api/alerts/*         Alert inbox and expiry sweep
  /api/scenarios/*      Demo scenarios (reset + seed)
  /metrics              Prometheus metrics
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures the outer HTTP surface.
type RouterOptions struct {
	CORSOrigins []string
	JWTSecret   string
	Metrics     http.Handler
	Scheduler   *SweepScheduler
	Logger      *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(opts.JWTSecret))

		// Ingredient routes
		r.Route("/ingredients", func(r chi.Router) {
			r.Get("/", h.ListIngredients)
			r.Post("/", h.CreateIngredient)
			r.Get("/{id}", h.GetIngredient)
			r.Put("/{id}", h.UpdateIngredient)
			r.Delete("/{id}", h.DeleteIngredient)
			r.Get("/{id}/stock", h.GetStock)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Post("/{id}/transactions", h.ApplyTransaction)
			r.Get("/{id}/verify", h.VerifyLedger)
		})

		// Stock query routes
		r.Route("/stock", func(r chi.Router) {
			r.Get("/low", h.LowStock)
			r.Get("/out", h.OutOfStock)
			r.Get("/expiring", h.Expiring)
			r.Get("/expired", h.Expired)
			r.Post("/transfers", h.Transfer)
		})

		// Food and recipe routes
		r.Route("/foods", func(r chi.Router) {
			r.Get("/", h.ListFoods)
			r.Post("/", h.CreateFood)
			r.Get("/{id}", h.GetFood)
			r.Put("/{id}", h.UpdateFood)
			r.Delete("/{id}", h.DeleteFood)
			r.Get("/{id}/recipe", h.GetRecipe)
			r.Put("/{id}/recipe", h.SetRecipe)
			r.Post("/{id}/recipe", h.AddRecipeLine)
			r.Get("/{id}/availability", h.FoodAvailability)
		})

		// Sale routes
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Post("/tickets", h.RecordTicket)
			r.Get("/{id}", h.GetSale)
		})

		// Alert routes
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/{id}/acknowledge", h.AcknowledgeAlert)
			r.Post("/sweep", h.RunSweep)
			if opts.Scheduler != nil {
				r.Get("/sweep", opts.Scheduler.Status)
			}
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
