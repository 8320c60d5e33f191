package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/config"
	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators the handlers are built from.
type Dependencies struct {
	Database database.Database
	Engine   *scheduler.Engine
	Runner   *scheduler.Runner
}

type Server struct {
	*http.Server
	startupTime time.Time
}

func NewServer(settings config.Settings, deps Dependencies) (Server, error) {
	if settings.JWTSecret == "" {
		return Server{}, errs.NewConfigError("JWT_SECRET")
	}

	// Bind to 0.0.0.0 for external access
	address := fmt.Sprintf("0.0.0.0:%s", settings.Port)
	startupTime := time.Now()

	router := newRouter(settings, deps, withStartupTime(startupTime))

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  settings.ReadTimeout,
		WriteTimeout: settings.WriteTimeout,
		IdleTimeout:  settings.IdleTimeout,
	}

	return Server{server, startupTime}, nil
}

type router struct {
	startupTime time.Time
}

func withStartupTime(startupTime time.Time) func(*router) {
	return func(r *router) {
		r.startupTime = startupTime
	}
}

func newRouter(settings config.Settings, deps Dependencies, opts ...func(*router)) *chi.Mux {
	router := router{startupTime: time.Now()}
	for _, opt := range opts {
		opt(&router)
	}

	chiRouter := chi.NewRouter()
	chiRouter.Use(LogInternalServerErrors)
	chiRouter.Use(corsMiddleware(settings.AcceptedOrigins))

	handlers := initializeHandlers(deps, settings, router.startupTime)
	authMiddleware := newAuthMiddleware(settings.JWTSecret)

	setupRoutes(chiRouter, handlers, authMiddleware)

	return chiRouter
}

func (s Server) Start(errChannel chan<- error) {
	log.Info().Msgf("Server started on: %s", s.Addr)
	errChannel <- s.ListenAndServe()
}

func (s Server) ShutdownGracefully(timeout time.Duration) {
	log.Info().Msg("Gracefully shutting down...")

	gracefullCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(gracefullCtx); err != nil {
		log.Error().Msgf("Error shutting down the server: %v", err)
	} else {
		log.Info().Msg("HttpServer gracefully shut down")
	}
}
