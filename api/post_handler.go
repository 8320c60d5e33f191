package api

import (
	"net/http"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/scheduler"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type postHandler struct {
	responder Responder
	logger    zerolog.Logger
	postRepo  *database.PostRepo
	engine    *scheduler.Engine
}

func newPostHandler(postRepo *database.PostRepo, engine *scheduler.Engine) postHandler {
	logger := log.With().Str("handlerName", "postHandler").Logger()

	return postHandler{
		responder: NewResponder(logger),
		logger:    logger,
		postRepo:  postRepo,
		engine:    engine,
	}
}

// PostUpdateRequest holds the editable fields of a post. Absent fields are
// left unchanged.
type PostUpdateRequest struct {
	Title            *string  `json:"title"`
	Content          *string  `json:"content"`
	Excerpt          *string  `json:"excerpt"`
	SEOTitle         *string  `json:"seoTitle"`
	SEODescription   *string  `json:"seoDescription"`
	Keywords         []string `json:"keywords"`
	FeaturedImageURL *string  `json:"featuredImageUrl"`
	CategoryIDs      []int    `json:"categoryIds"`
}

func (req PostUpdateRequest) apply(post *models.Post) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&post.Title, req.Title)
	set(&post.Content, req.Content)
	set(&post.Excerpt, req.Excerpt)
	set(&post.SEOTitle, req.SEOTitle)
	set(&post.SEODescription, req.SEODescription)
	if req.Keywords != nil {
		post.Keywords = req.Keywords
	}
	if req.CategoryIDs != nil {
		post.CategoryIDs = req.CategoryIDs
	}
	if req.FeaturedImageURL != nil {
		if url := strings.TrimSpace(*req.FeaturedImageURL); url != "" {
			post.FeaturedImageURL = &url
		} else {
			post.FeaturedImageURL = nil
		}
	}
}

// getAllPosts lists the posts of the authenticated user, optionally
// restricted to one blog config and one status
// @Summary List posts
// @Tags Posts
// @Produce json
// @Param blogConfigId query string false "Blog Config ID" format(uuid)
// @Param status query string false "draft, scheduled, published or failed"
// @Success 200 {array} models.Post
// @Router /posts [get]
func (h postHandler) getAllPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := ctxGetUserID(r.Context())
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		var filter database.PostFilter
		if raw := r.URL.Query().Get("blogConfigId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				h.responder.WriteError(w, errs.NewInvalidFieldError("blogConfigId", "must be a UUID"))
				return
			}
			filter.BlogConfigID = &id
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := models.PostStatus(raw)
			if !status.Valid() {
				h.responder.WriteError(w, errs.NewInvalidFieldError("status", "must be draft, scheduled, published or failed"))
				return
			}
			filter.Status = status
		}

		posts, err := h.postRepo.FindByUser(r.Context(), userID, filter)
		if err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("find", "posts", err))
			return
		}
		if posts == nil {
			posts = []*models.Post{}
		}
		h.responder.WriteJSON(w, posts)
	}
}

// getPost retrieves one post
// @Summary Get post
// @Tags Posts
// @Produce json
// @Param postID path string true "Post ID" format(uuid)
// @Success 200 {object} models.Post
// @Failure 404 {object} ErrorResponse "Not Found - Post not found"
// @Router /post/{postID} [get]
func (h postHandler) getPost() http.HandlerFunc {
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

		post, err := ownedPost(r.Context(), h.postRepo, id, userID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, post)
	}
}

// updatePost edits the content of a post that is not published yet. The SEO
// score is recomputed.
// @Summary Update post
// @Tags Posts
// @Accept json
// @Produce json
// @Param postID path string true "Post ID" format(uuid)
// @Param post body PostUpdateRequest true "Fields to change"
// @Success 200 {object} models.Post
// @Failure 409 {object} ErrorResponse "Conflict - Post already published"
// @Router /post/{postID} [put]
func (h postHandler) updatePost() http.HandlerFunc {
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

		var req PostUpdateRequest
		if err := decodeBody(r, "post", &req, false); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if _, err := ownedPost(r.Context(), h.postRepo, id, userID); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		post, err := h.engine.EditPost(r.Context(), id, func(post *models.Post) error {
			req.apply(post)
			if strings.TrimSpace(post.Title) == "" {
				return errs.NewMissingRequiredFieldError("title")
			}
			if strings.TrimSpace(post.Content) == "" {
				return errs.NewMissingRequiredFieldError("content")
			}
			post.SEOScore = services.ScoreSEO(post).Score
			return nil
		})
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, post)
	}
}

// deletePost deletes a post
// @Summary Delete post
// @Tags Posts
// @Param postID path string true "Post ID" format(uuid)
// @Success 200 {object} DeleteResponse
// @Router /post/{postID} [delete]
func (h postHandler) deletePost() http.HandlerFunc {
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
		if err := h.postRepo.Delete(r.Context(), id); err != nil {
			h.responder.WriteError(w, errs.NewDatabaseError("delete", "post", err))
			return
		}

		h.responder.WriteJSON(w, DeleteResponse{Status: "success", Message: "post deleted successfully"})
	}
}

// getPostSEO scores the post with the on-page SEO heuristics
// @Summary SEO report
// @Tags Posts
// @Produce json
// @Param postID path string true "Post ID" format(uuid)
// @Success 200 {object} services.SEOReport
// @Router /post/{postID}/seo [get]
func (h postHandler) getPostSEO() http.HandlerFunc {
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

		post, err := ownedPost(r.Context(), h.postRepo, id, userID)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, services.ScoreSEO(post))
	}
}
