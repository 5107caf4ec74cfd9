package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matchdesk/scoring-system/handlers"
	"github.com/matchdesk/scoring-system/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	matchHandler *handlers.MatchHandler,
	webSocketHandler *handlers.WebSocketHandler,
	jwtSecret []byte,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", matchHandler.HealthHandler)

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", matchHandler.GetMatchSnapshotHandler)
		r.Get("/{matchID}/sets", matchHandler.GetMatchSetsHandler)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))
		r.Get("/ws/matches/{matchID}", webSocketHandler.ServeWs)
	})
}
