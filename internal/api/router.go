package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/driftspace/backend/internal/auth"
	"github.com/driftspace/backend/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	chatHandler   *ChatHandler
	mediaHandler  *MediaHandler
	healthHandler *HealthHandler
	jwtManager    *auth.JWTManager
	logger        *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	chatHandler *ChatHandler,
	mediaHandler *MediaHandler,
	healthHandler *HealthHandler,
	jwtManager *auth.JWTManager,
	logger *zap.Logger,
) *Router {
	return &Router{
		chatHandler:   chatHandler,
		mediaHandler:  mediaHandler,
		healthHandler: healthHandler,
		jwtManager:    jwtManager,
		logger:        logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware())
	r.Use(chimiddleware.Compress(5))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.jwtManager))

			// Push-event stream
			r.Get("/ws", rt.chatHandler.HandleWebSocket)

			// Conversations
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", rt.chatHandler.GetConversations)
				r.Post("/", rt.chatHandler.CreateConversation)
				r.Route("/{conversationId}", func(r chi.Router) {
					r.Delete("/", rt.chatHandler.DeleteConversation)
					r.Post("/read", rt.chatHandler.MarkConversationRead)
					r.Get("/messages", rt.chatHandler.GetMessages)
					r.Post("/messages", rt.chatHandler.SendMessage)
				})
			})

			// Messages
			r.Route("/messages/{messageId}", func(r chi.Router) {
				r.Patch("/", rt.chatHandler.EditMessage)
				r.Delete("/", rt.chatHandler.DeleteMessage)
				r.Post("/reactions", rt.chatHandler.ToggleReaction)
			})

			// Media
			r.Post("/media", rt.mediaHandler.Upload)
		})
	})

	return r
}
