package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// SetupRoutes configures all API routes. feed may be nil.
func SetupRoutes(handler *Handler, feed *Feed) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	if feed != nil {
		r.Handle("/ws/notifications", feed)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", handler.GetStatus).Methods("GET")
	api.HandleFunc("/settings", handler.GetSettings).Methods("GET")
	api.HandleFunc("/settings/interval", handler.SetGlobalInterval).Methods("PUT")

	// Watchlist routes
	api.HandleFunc("/users", handler.GetUsers).Methods("GET")
	api.HandleFunc("/users/{chatID}/interval", handler.SetUserInterval).Methods("PUT")
	api.HandleFunc("/users/{chatID}/watchlist", handler.GetWatchlist).Methods("GET")
	api.HandleFunc("/users/{chatID}/watchlist", handler.AddTicker).Methods("POST")
	api.HandleFunc("/users/{chatID}/watchlist/{ticker}", handler.RemoveTicker).Methods("DELETE")
	api.HandleFunc("/users/{chatID}/watchlist/{ticker}", handler.SetTickerEnabled).Methods("PATCH")

	return r
}

// WithCORS wraps the router for browser dashboards
func WithCORS(h http.Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(h)
}
