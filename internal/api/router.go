package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// Message intake from the Telegram webhook
	r.Post("/webhook/telegram", apiHandler.TelegramWebhookHandler)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Operator-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/alerts", apiHandler.ListAlertsHandler)
			r.Post("/alerts/{alertID}/resolve", apiHandler.ResolveAlertHandler)
			r.Get("/surveillance/logs", apiHandler.ListSurveillanceLogsHandler)
			r.Post("/surveillance/run", apiHandler.RunSurveillanceHandler)
		})
	})

	return r
}
