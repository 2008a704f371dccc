// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phenbot/study-engine/cmd/phenbot-api/handlers"
	"github.com/phenbot/study-engine/cmd/phenbot-api/middleware"
	"github.com/phenbot/study-engine/internal/api/rpc"
	"github.com/phenbot/study-engine/internal/app"
	"github.com/phenbot/study-engine/internal/observability"
)

// AppConfig holds HTTP-layer settings.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *AppConfig, svc *app.App) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"phenbot"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := svc.Store.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	authHandler := handlers.NewAuthHandler(logger, svc.Accounts)
	askHandler := handlers.NewAskHandler(logger, svc.Router)
	documentHandler := handlers.NewDocumentHandler(logger, svc.Pipeline, svc.Store, svc.Study, cfg.MaxUploadBytes)
	flashcardHandler := handlers.NewFlashcardHandler(logger, svc.Study)
	profileHandler := handlers.NewProfileHandler(logger, svc.Accounts, svc.Store)

	requireSession := middleware.Auth(svc.Accounts)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Post("/ask", askHandler.Ask)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", documentHandler.List)
				r.Post("/", documentHandler.Upload)
				r.Post("/batch", documentHandler.UploadBatch)
				r.Post("/{id}/summary", documentHandler.Summarize)
			})

			r.Route("/flashcards", func(r chi.Router) {
				r.Get("/", flashcardHandler.List)
				r.Post("/", flashcardHandler.Create)
				r.Post("/generate", flashcardHandler.Generate)
			})

			r.Post("/preferences", profileHandler.UpdatePreferences)
			r.Get("/analytics", profileHandler.Analytics)
			r.Get("/history", profileHandler.History)

			r.Route("/subjects", func(r chi.Router) {
				r.Get("/", profileHandler.Subjects)
				r.Post("/", profileHandler.AddSubject)
				r.Delete("/", profileHandler.RemoveSubject)
			})
		})
	})

	tutor := rpc.NewTutorService(logger, svc.Router, svc.Store)
	path, rpcHandler := tutor.Handler()
	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Mount("/rpc"+path, http.StripPrefix("/rpc", rpcHandler))
	})

	return r
}
