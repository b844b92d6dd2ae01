package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bentopro/internal/auth"
)

// New constructs the HTTP server with routes and middleware.
func New(port string, handler Handler, accessTokenHash string) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireToken(accessTokenHash))
		r.Route("/generations", func(r chi.Router) {
			r.Get("/", handler.List)
			r.Post("/", handler.Create)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", handler.Get)
				r.Post("/favorite", handler.Favorite)
			})
		})
		r.Get("/events", handler.StreamEvents)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: generation responses wait on model calls and the
		// event stream stays open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	log.Println("server ready on", srv.Addr)
	return srv
}
