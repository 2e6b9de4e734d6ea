package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mapit-backend/internal/handlers"
	"mapit-backend/internal/middleware"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	MindMaps   *handlers.MindMapHandler
	Flashcards *handlers.FlashcardHandler
	Games      *handlers.GameHandler
	WebSocket  http.HandlerFunc
}

func New(jwtAuth *middleware.JWTAuth, h Handlers, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Uploads start AI generation (5 req/min per IP)
	uploadLimiter := middleware.NewRateLimiter(5, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Middleware)
				r.Post("/register", h.Auth.Register)
				r.Post("/login", h.Auth.Login)
				r.Post("/refresh", h.Auth.Refresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", h.Auth.Logout)
				r.Get("/me", h.Auth.Me)
			})
		})

		// ──── Mind Map Routes ────
		r.Route("/mind-maps", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(uploadLimiter.Middleware).Post("/", h.MindMaps.Upload)
			r.Get("/", h.MindMaps.List)
			r.Get("/{id}", h.MindMaps.Get)
			r.Delete("/{id}", h.MindMaps.Delete)
		})

		// ──── Flashcard Routes ────
		r.Route("/flashcards", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/due", h.Flashcards.Due)
			r.Get("/stats", h.Flashcards.Stats)
			r.Get("/mind-maps/{id}/flashcards", h.Flashcards.ListForMindMap)
			r.Post("/{id}/review", h.Flashcards.Review)
			r.Get("/{id}/progress", h.Flashcards.Progress)
			r.Post("/{id}/evaluate", h.Flashcards.Evaluate)
		})

		// ──── Game Routes ────
		r.Route("/game/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", h.Games.Create)
			r.Get("/", h.Games.List)
			r.Get("/{id}", h.Games.Get)
			r.Put("/{id}", h.Games.Complete)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", h.MindMaps.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", h.WebSocket)
	})

	return r
}
