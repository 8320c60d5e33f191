package api

import (
	"context"
	"net/http"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/scheduler"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const backgroundFillTimeout = 15 * time.Minute

// ensureTrigger fills the pending queue of a config outside the request.
type ensureTrigger struct {
	engine      *scheduler.Engine
	targetCount int
	logger      zerolog.Logger
}

func newEnsureTrigger(engine *scheduler.Engine, targetCount int) ensureTrigger {
	return ensureTrigger{
		engine:      engine,
		targetCount: targetCount,
		logger:      log.With().Str("component", "scheduleTrigger").Logger(),
	}
}

func (t ensureTrigger) fire(blogConfigID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundFillTimeout)
		defer cancel()

		logger := t.logger.With().Str("blogConfigId", blogConfigID.String()).Logger()
		res, err := t.engine.EnsureScheduledPosts(ctx, blogConfigID, t.targetCount)
		if err != nil {
			logger.Error().Str("error", errs.FullMessage(err)).Int("created", res.Created).Msg("Initial queue fill failed")
			return
		}
		logger.Info().Int("created", res.Created).Msg("Initial queue fill done")
	}()
}

type schedulingHandler struct {
	responder      Responder
	logger         zerolog.Logger
	blogConfigRepo *database.BlogConfigRepo
	postRepo       *database.PostRepo
	engine         *scheduler.Engine
	runner         *scheduler.Runner
	trigger        ensureTrigger
}

func newSchedulingHandler(blogConfigRepo *database.BlogConfigRepo, postRepo *database.PostRepo, engine *scheduler.Engine, runner *scheduler.Runner, trigger ensureTrigger) schedulingHandler {
	logger := log.With().Str("handlerName", "schedulingHandler").Logger()

	return schedulingHandler{
		responder:      NewResponder(logger),
		logger:         logger,
		blogConfigRepo: blogConfigRepo,
		postRepo:       postRepo,
		engine:         engine,
		runner:         runner,
		trigger:        trigger,
	}
}

// EnsureScheduledRequest optionally overrides the configured queue size.
type EnsureScheduledRequest struct {
	TargetCount *int `json:"targetCount"`
}

// GenerateRequest optionally fixes the topic of an on-demand draft.
type GenerateRequest struct {
	Topic string `json:"topic"`
}

type RescheduleRequest struct {
	ScheduledFor time.Time `json:"scheduledFor"`
}

type ReassignRequest struct {
	BlogConfigID uuid.UUID `json:"blogConfigId"`
}

// updateSchedule changes the scheduling fields of a blog config. Turning
// scheduling on fills the pending queue in the background.
// @Summary Update schedule
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param blogConfigID path string true "Blog Config ID" format(uuid)
// @Param schedule body ScheduleRequest true "Scheduling fields"
// @Success 200 {object} BlogConfigResponse
// @Failure 422 {object} ErrorResponse "Unprocessable Entity - Invalid schedule"
// @Router /blog-config/{blogConfigID}/schedule [put]
func (h schedulingHandler) updateSchedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := urlUUID(r, "blogConfigID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req ScheduleRequest
		if err := decodeBody(r, "schedule", &req, false); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		cfg, err := ownedConfig(r.Context(), h.blogConfigRepo, id, userID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		wasEnabled := cfg.SchedulingEnabled

		req.apply(cfg)
		if err := cfg.ValidateSchedule(); err != nil {
			h.responder.WriteError(w, errs.NewInvalidScheduleError("schedule", err))
			return
		}
		if err := h.blogConfigRepo.Update(r.Context(), cfg); err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("update", "blog config", err))
			return
		}

		if cfg.SchedulingEnabled && !wasEnabled {
			h.logger.Info().Str("blogConfigId", cfg.ID.String()).Msg("Scheduling enabled")
			h.trigger.fire(cfg.ID)
		}
		h.responder.WriteJSON(w, newBlogConfigResponse(cfg))
	}
}

// ensureScheduled tops up the pending queue of a blog config right away
// @Summary Fill pending queue
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param blogConfigID path string true "Blog Config ID" format(uuid)
// @Param body body EnsureScheduledRequest false "Queue size override"
// @Success 200 {object} scheduler.Result
// @Failure 409 {object} ErrorResponse "Conflict - Scheduling disabled"
// @Router /blog-config/{blogConfigID}/ensure-scheduled [post]
func (h schedulingHandler) ensureScheduled() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := urlUUID(r, "blogConfigID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req EnsureScheduledRequest
		if err := decodeBody(r, "ensure scheduled", &req, true); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		target := h.trigger.targetCount
		if req.TargetCount != nil {
			if *req.TargetCount < 0 {
				h.responder.WriteError(w, errs.NewInvalidFieldError("targetCount", "must not be negative"))
				return
			}
			target = *req.TargetCount
		}

		if _, err := ownedConfig(r.Context(), h.blogConfigRepo, id, userID); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		res, err := h.engine.EnsureScheduledPosts(r.Context(), id, target)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if res.Slots == nil {
			res.Slots = []time.Time{}
		}
		h.responder.WriteJSON(w, res)
	}
}

// generateDraft writes one unscheduled draft for a blog config
// @Summary Generate draft
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param blogConfigID path string true "Blog Config ID" format(uuid)
// @Param body body GenerateRequest false "Topic"
// @Success 201 {object} models.Post
// @Failure 502 {object} ErrorResponse "Bad Gateway - Generation failed"
// @Router /blog-config/{blogConfigID}/generate [post]
func (h schedulingHandler) generateDraft() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := urlUUID(r, "blogConfigID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req GenerateRequest
		if err := decodeBody(r, "generate", &req, true); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if _, err := ownedConfig(r.Context(), h.blogConfigRepo, id, userID); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		post, err := h.engine.GenerateDraft(r.Context(), id, req.Topic)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteCreated(w, post)
	}
}

// publishPost publishes a draft or scheduled post now
// @Summary Publish now
// @Tags Publishing
// @Produce json
// @Param postID path string true "Post ID" format(uuid)
// @Success 200 {object} models.Post
// @Failure 409 {object} ErrorResponse "Conflict - Post is not draft or scheduled"
// @Failure 502 {object} ErrorResponse "Bad Gateway - WordPress rejected the post"
// @Router /post/{postID}/publish [post]
func (h schedulingHandler) publishPost() http.HandlerFunc {
	return h.postAction(func(ctx context.Context, postID uuid.UUID) (any, error) {
		return h.runner.PublishNow(ctx, postID)
	})
}

// retryPost moves a failed post back to draft
// @Summary Retry failed post
// @Tags Publishing
// @Param postID path string true "Post ID" format(uuid)
// @Success 200 {object} models.Post
// @Router /post/{postID}/retry [post]
func (h schedulingHandler) retryPost() http.HandlerFunc {
	return h.postAction(func(ctx context.Context, postID uuid.UUID) (any, error) {
		return h.runner.RetryFailed(ctx, postID)
	})
}

// unschedulePost turns a scheduled post back into a draft
// @Router /post/{postID}/unschedule [post]
func (h schedulingHandler) unschedulePost() http.HandlerFunc {
	return h.postAction(func(ctx context.Context, postID uuid.UUID) (any, error) {
		return h.engine.Unschedule(ctx, postID)
	})
}

// reschedulePost moves a pending post to another time
// @Summary Reschedule post
// @Tags Scheduling
// @Accept json
// @Param postID path string true "Post ID" format(uuid)
// @Param body body RescheduleRequest true "New slot"
// @Success 200 {object} models.Post
// @Router /post/{postID}/reschedule [put]
func (h schedulingHandler) reschedulePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleRequest
		if err := decodeBody(r, "reschedule", &req, false); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if req.ScheduledFor.IsZero() {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("scheduledFor"))
			return
		}

		h.postAction(func(ctx context.Context, postID uuid.UUID) (any, error) {
			return h.engine.Reschedule(ctx, postID, req.ScheduledFor)
		})(w, r)
	}
}

// reassignPost moves a pending post to another blog config of the user
// @Summary Reassign post
// @Tags Scheduling
// @Accept json
// @Param postID path string true "Post ID" format(uuid)
// @Param body body ReassignRequest true "Target blog config"
// @Success 200 {object} models.Post
// @Router /post/{postID}/reassign [put]
func (h schedulingHandler) reassignPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReassignRequest
		if err := decodeBody(r, "reassign", &req, false); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if req.BlogConfigID == uuid.Nil {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("blogConfigId"))
			return
		}

		h.postAction(func(ctx context.Context, postID uuid.UUID) (any, error) {
			userID, err := ctxGetUserID(ctx)
			if err != nil {
				return nil, err
			}
			if _, err := ownedConfig(ctx, h.blogConfigRepo, req.BlogConfigID, userID); err != nil {
				return nil, err
			}
			return h.engine.Reassign(ctx, postID, req.BlogConfigID)
		})(w, r)
	}
}

// postAction resolves the postID path parameter, checks ownership and runs
// action, writing its result or error.
func (h schedulingHandler) postAction(action func(ctx context.Context, postID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		id, err := urlUUID(r, "postID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if _, err := ownedPost(r.Context(), h.postRepo, id, userID); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		result, err := action(r.Context(), id)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, result)
	}
}
