package api

import (
	"net/http"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type blogConfigHandler struct {
	responder       Responder
	logger          zerolog.Logger
	blogConfigRepo  *database.BlogConfigRepo
	trigger         ensureTrigger
	defaultTimezone string
}

func newBlogConfigHandler(blogConfigRepo *database.BlogConfigRepo, trigger ensureTrigger, defaultTimezone string) blogConfigHandler {
	logger := log.With().Str("handlerName", "blogConfigHandler").Logger()

	return blogConfigHandler{
		responder:       NewResponder(logger),
		logger:          logger,
		blogConfigRepo:  blogConfigRepo,
		trigger:         trigger,
		defaultTimezone: defaultTimezone,
	}
}

// ScheduleRequest carries the scheduling fields of a blog config. Absent
// fields are left unchanged.
type ScheduleRequest struct {
	PostingFrequency  *models.Frequency `json:"postingFrequency"`
	SchedulingEnabled *bool             `json:"schedulingEnabled"`
	AutoPublish       *bool             `json:"autoPublish"`
	ScheduleTime      *string           `json:"scheduleTime"`
	ScheduleDayOfWeek *int              `json:"scheduleDayOfWeek"`
	Timezone          *string           `json:"timezone"`
}

func (req ScheduleRequest) apply(cfg *models.BlogConfig) {
	if req.PostingFrequency != nil {
		cfg.PostingFrequency = *req.PostingFrequency
	}
	if req.SchedulingEnabled != nil {
		cfg.SchedulingEnabled = *req.SchedulingEnabled
	}
	if req.AutoPublish != nil {
		cfg.AutoPublish = *req.AutoPublish
	}
	if req.ScheduleTime != nil {
		t := strings.TrimSpace(*req.ScheduleTime)
		cfg.ScheduleTime = &t
	}
	if req.ScheduleDayOfWeek != nil {
		cfg.ScheduleDayOfWeek = req.ScheduleDayOfWeek
	}
	if req.Timezone != nil {
		cfg.Timezone = strings.TrimSpace(*req.Timezone)
	}
}

// BlogConfigRequest is the body of create and update. The application
// password is write-only and never returned.
type BlogConfigRequest struct {
	Name                 *string            `json:"name"`
	WordPressURL         *string            `json:"wordpressUrl"`
	WordPressUsername    *string            `json:"wordpressUsername"`
	WordPressAppPassword *string            `json:"wordpressAppPassword"`
	Niche                *string            `json:"niche"`
	TargetAudience       *string            `json:"targetAudience"`
	Tone                 *string            `json:"tone"`
	Keywords             []string           `json:"keywords"`
	AIProvider           *models.AIProvider `json:"aiProvider"`
	GenerateImages       *bool              `json:"generateImages"`
	ScheduleRequest
}

func (req BlogConfigRequest) apply(cfg *models.BlogConfig) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&cfg.Name, req.Name)
	set(&cfg.WordPressURL, req.WordPressURL)
	set(&cfg.WordPressUsername, req.WordPressUsername)
	set(&cfg.WordPressAppPassword, req.WordPressAppPassword)
	set(&cfg.Niche, req.Niche)
	set(&cfg.TargetAudience, req.TargetAudience)
	set(&cfg.Tone, req.Tone)
	if req.Keywords != nil {
		cfg.Keywords = req.Keywords
	}
	if req.AIProvider != nil {
		cfg.AIProvider = *req.AIProvider
	}
	if req.GenerateImages != nil {
		cfg.GenerateImages = *req.GenerateImages
	}
	req.ScheduleRequest.apply(cfg)
}

// BlogConfigResponse is a blog config as the API returns it.
type BlogConfigResponse struct {
	*models.BlogConfig
	HasWordPressCredentials bool `json:"hasWordpressCredentials"`
}

func newBlogConfigResponse(cfg *models.BlogConfig) BlogConfigResponse {
	return BlogConfigResponse{BlogConfig: cfg, HasWordPressCredentials: cfg.HasCredentials()}
}

// validateBlogConfig checks the fields every stored config must satisfy.
func validateBlogConfig(cfg *models.BlogConfig) error {
	if cfg.Name == "" {
		return errs.NewMissingRequiredFieldError("name")
	}
	if cfg.AIProvider != models.AIProviderOpenAI && cfg.AIProvider != models.AIProviderAnthropic {
		return errs.NewInvalidFieldError("aiProvider", "must be openai or anthropic")
	}
	if err := cfg.ValidateSchedule(); err != nil {
		return errs.NewInvalidScheduleError("schedule", err)
	}
	return nil
}

// getAllBlogConfigs lists the blog configs of the authenticated user
// @Summary List blog configs
// @Tags Blog Configs
// @Produce json
// @Success 200 {array} BlogConfigResponse
// @Router /blog-configs [get]
func (h blogConfigHandler) getAllBlogConfigs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		configs, err := h.blogConfigRepo.FindByUser(r.Context(), userID)
		if err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("find", "blog configs", err))
			return
		}

		response := make([]BlogConfigResponse, 0, len(configs))
		for _, cfg := range configs {
			response = append(response, newBlogConfigResponse(cfg))
		}
		h.responder.WriteJSON(w, response)
	}
}

// getBlogConfig retrieves one blog config
// @Summary Get blog config
// @Tags Blog Configs
// @Produce json
// @Param blogConfigID path string true "Blog Config ID" format(uuid)
// @Success 200 {object} BlogConfigResponse
// @Failure 404 {object} ErrorResponse "Not Found - Blog config not found"
// @Router /blog-config/{blogConfigID} [get]
func (h blogConfigHandler) getBlogConfig() http.HandlerFunc {
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

		cfg, err := ownedConfig(r.Context(), h.blogConfigRepo, id, userID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, newBlogConfigResponse(cfg))
	}
}

// createBlogConfig creates a blog config. When it is created with
// scheduling enabled its pending queue is filled in the background.
// @Summary Create blog config
// @Tags Blog Configs
// @Accept json
// @Produce json
// @Param blogConfig body BlogConfigRequest true "Blog config"
// @Success 201 {object} BlogConfigResponse
// @Failure 400 {object} ErrorResponse "Bad Request - Invalid blog config"
// @Router /blog-config [post]
func (h blogConfigHandler) createBlogConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var req BlogConfigRequest
		if err := decodeBody(r, "blog config", &req, false); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		cfg := &models.BlogConfig{
			UserID:           userID,
			AIProvider:       models.AIProviderOpenAI,
			PostingFrequency: models.FrequencyWeekly,
			Timezone:         h.defaultTimezone,
		}
		req.apply(cfg)
		if err := validateBlogConfig(cfg); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if err := h.blogConfigRepo.Add(r.Context(), cfg); err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("create", "blog config", err))
			return
		}
		h.logger.Info().Str("blogConfigId", cfg.ID.String()).Msg("Blog config created")

		if cfg.SchedulingEnabled {
			h.trigger.fire(cfg.ID)
		}
		h.responder.WriteCreated(w, newBlogConfigResponse(cfg))
	}
}

// updateBlogConfig updates a blog config
// @Summary Update blog config
// @Tags Blog Configs
// @Accept json
// @Produce json
// @Param blogConfigID path string true "Blog Config ID" format(uuid)
// @Param blogConfig body BlogConfigRequest true "Fields to change"
// @Success 200 {object} BlogConfigResponse
// @Router /blog-config/{blogConfigID} [put]
func (h blogConfigHandler) updateBlogConfig() http.HandlerFunc {
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

		var req BlogConfigRequest
		if err := decodeBody(r, "blog config", &req, false); err != nil {
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
		if err := validateBlogConfig(cfg); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if err := h.blogConfigRepo.Update(r.Context(), cfg); err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("update", "blog config", err))
			return
		}

		if cfg.SchedulingEnabled && !wasEnabled {
			h.trigger.fire(cfg.ID)
		}
		h.responder.WriteJSON(w, newBlogConfigResponse(cfg))
	}
}

// deleteBlogConfig deletes a blog config together with its posts
// @Summary Delete blog config
// @Tags Blog Configs
// @Param blogConfigID path string true "Blog Config ID" format(uuid)
// @Success 200 {object} DeleteResponse
// @Router /blog-config/{blogConfigID} [delete]
func (h blogConfigHandler) deleteBlogConfig() http.HandlerFunc {
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

		if _, err := ownedConfig(r.Context(), h.blogConfigRepo, id, userID); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if err := h.blogConfigRepo.Delete(r.Context(), id); err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("delete", "blog config", err))
			return
		}

		h.responder.WriteJSON(w, DeleteResponse{Status: "success", Message: "blog config deleted successfully"})
	}
}
