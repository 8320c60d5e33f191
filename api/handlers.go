package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/config"
	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// initializeHandlers creates and returns all handlers organized in a routeHandlers struct
func initializeHandlers(deps Dependencies, settings config.Settings, startupTime time.Time) *routeHandlers {
	configs := deps.Database.BlogConfigRepo()
	posts := deps.Database.PostRepo()
	trigger := newEnsureTrigger(deps.Engine, settings.ScheduleTargetCount)

	return &routeHandlers{
		healthHandler:     newHealthHandler(startupTime),
		blogConfigHandler: newBlogConfigHandler(configs, trigger, settings.DefaultTimezone),
		postHandler:       newPostHandler(posts, deps.Engine),
		schedulingHandler: newSchedulingHandler(configs, posts, deps.Engine, deps.Runner, trigger),
	}
}

// urlUUID reads a UUID path parameter.
func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, errs.NewMissingRequiredFieldError(name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.NewInvalidFieldError(name, "must be a UUID")
	}
	return id, nil
}

// ownedConfig loads a blog config of the user. Configs of other users are
// reported as missing.
func ownedConfig(ctx context.Context, repo *database.BlogConfigRepo, id, userID uuid.UUID) (*models.BlogConfig, error) {
	cfg, err := repo.FindByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && cfg.UserID != userID) {
		return nil, errs.NewConfigNotFoundError(id)
	}
	if err != nil {
		return nil, errs.NewDatabaseError("find", "blog config", err)
	}
	return cfg, nil
}

// ownedPost loads a post of the user. Posts of other users are reported as
// missing.
func ownedPost(ctx context.Context, repo *database.PostRepo, id, userID uuid.UUID) (*models.Post, error) {
	post, err := repo.FindByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) || (err == nil && post.UserID != userID) {
		return nil, errs.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, errs.NewDatabaseError("find", "post", err)
	}
	return post, nil
}
