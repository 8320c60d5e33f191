package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type BlogConfigStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.BlogConfig, error)
	UpdateLastScheduledAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type PostStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	FindPending(ctx context.Context, blogConfigID uuid.UUID) ([]*models.Post, error)
	FindRecentTitles(ctx context.Context, blogConfigID uuid.UUID, limit int) ([]string, error)
	Add(ctx context.Context, post *models.Post) error
	// Update stores post only while its stored status is still from.
	Update(ctx context.Context, post *models.Post, from models.PostStatus) error
}

// Option configures an Engine or a Runner.
type Option func(*clock)

type clock struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *clock) { c.now = now }
}

func newClock(opts []Option) clock {
	c := clock{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Result describes the posts one EnsureScheduledPosts call created.
type Result struct {
	Created int         `json:"created"`
	Slots   []time.Time `json:"slots"`
}

// Engine keeps the pending queue of every scheduling-enabled blog config
// filled with generated posts.
type Engine struct {
	clock
	configs BlogConfigStore
	posts   PostStore
	topics  *TopicSelector
	content services.ContentGenerator
	images  services.ImageGenerator
	locks   *keyedMutex
	logger  zerolog.Logger
}

// NewEngine wires the engine. images may be nil to disable featured images.
func NewEngine(configs BlogConfigStore, posts PostStore, topics services.TopicGenerator, content services.ContentGenerator, images services.ImageGenerator, opts ...Option) *Engine {
	return &Engine{
		clock:   newClock(opts),
		configs: configs,
		posts:   posts,
		topics:  NewTopicSelector(topics),
		content: content,
		images:  images,
		locks:   newKeyedMutex(),
		logger:  log.With().Str("component", "scheduler").Logger(),
	}
}

// EnsureScheduledPosts tops up the pending queue of a blog config to
// targetCount posts, one slot after the other. It is a no-op when the queue
// is already full. When content generation fails midway the posts created so
// far are kept and the error is returned; a later call continues from there.
//
// Calls for the same config are serialized within this process.
func (e *Engine) EnsureScheduledPosts(ctx context.Context, blogConfigID uuid.UUID, targetCount int) (Result, error) {
	unlock := e.locks.Lock(blogConfigID)
	defer unlock()

	var result Result

	cfg, err := e.loadConfig(ctx, blogConfigID)
	if err != nil {
		return result, err
	}
	if !cfg.SchedulingEnabled {
		return result, errs.NewSchedulingDisabledError(cfg.ID)
	}
	if cfg.ScheduleTime == nil || *cfg.ScheduleTime == "" {
		return result, errs.NewScheduleTimeMissingError(cfg.ID)
	}
	if err := cfg.ValidateSchedule(); err != nil {
		return result, errs.NewInvalidScheduleError("schedule", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return result, errs.NewInvalidScheduleError("timezone", err)
	}

	pending, err := e.posts.FindPending(ctx, cfg.ID)
	if err != nil {
		return result, errs.NewDatabaseError("find", "pending posts", err)
	}

	deficit := targetCount - len(pending)
	if deficit <= 0 {
		e.logger.Debug().
			Str("blogConfigId", cfg.ID.String()).
			Int("pending", len(pending)).
			Msg("Pending queue is full")
		return result, nil
	}

	anchor := e.anchor(cfg, pending)
	titles, err := e.posts.FindRecentTitles(ctx, cfg.ID, recentTitleWindow)
	if err != nil {
		return result, errs.NewDatabaseError("find", "recent titles", err)
	}

	logger := e.logger.With().Str("blogConfigId", cfg.ID.String()).Logger()
	logger.Info().
		Int("pending", len(pending)).
		Int("deficit", deficit).
		Time("anchor", anchor).
		Msg("Filling pending queue")

	for i := 0; i < deficit; i++ {
		slot, err := NextSlot(cfg.PostingFrequency, *cfg.ScheduleTime, cfg.ScheduleDayOfWeek, loc, anchor)
		if err != nil {
			return result, e.finish(ctx, cfg.ID, anchor, result, err)
		}

		post, err := e.produce(ctx, cfg, "", titles)
		if err != nil {
			return result, e.finish(ctx, cfg.ID, anchor, result, err)
		}
		post.Status = models.PostStatusScheduled
		post.ScheduledFor = &slot

		if err := e.posts.Add(ctx, post); err != nil {
			return result, e.finish(ctx, cfg.ID, anchor, result, errs.NewDatabaseError("create", "post", err))
		}

		logger.Info().
			Str("postId", post.ID.String()).
			Str("title", post.Title).
			Time("scheduledFor", slot).
			Msg("Scheduled post")

		anchor = slot
		result.Created++
		result.Slots = append(result.Slots, slot)
		titles = append([]string{post.Title}, titles...)
	}

	return result, e.finish(ctx, cfg.ID, anchor, result, nil)
}

// GenerateDraft creates one unscheduled draft for the blog config. An empty
// topic is chosen by the topic selector.
func (e *Engine) GenerateDraft(ctx context.Context, blogConfigID uuid.UUID, topic string) (*models.Post, error) {
	cfg, err := e.loadConfig(ctx, blogConfigID)
	if err != nil {
		return nil, err
	}

	titles, err := e.posts.FindRecentTitles(ctx, cfg.ID, recentTitleWindow)
	if err != nil {
		return nil, errs.NewDatabaseError("find", "recent titles", err)
	}

	post, err := e.produce(ctx, cfg, topic, titles)
	if err != nil {
		return nil, err
	}
	post.Status = models.PostStatusDraft

	if err := e.posts.Add(ctx, post); err != nil {
		return nil, errs.NewDatabaseError("create", "post", err)
	}

	e.logger.Info().
		Str("blogConfigId", cfg.ID.String()).
		Str("postId", post.ID.String()).
		Msg("Generated draft")
	return post, nil
}

// produce runs topic selection, content and image generation and returns the
// unsaved post.
func (e *Engine) produce(ctx context.Context, cfg *models.BlogConfig, topic string, titles []string) (*models.Post, error) {
	if topic == "" {
		var err error
		topic, err = e.topics.SelectNextTopic(ctx, cfg, titles)
		if err != nil {
			return nil, err
		}
	}

	content, err := e.content.Generate(ctx, topic, cfg)
	if err != nil {
		return nil, errs.NewContentGenerationError(topic, err)
	}

	post := &models.Post{
		UserID:         cfg.UserID,
		BlogConfigID:   cfg.ID,
		Topic:          topic,
		Title:          content.Title,
		Content:        content.Content,
		Excerpt:        content.Excerpt,
		SEOTitle:       content.SEOTitle,
		SEODescription: content.SEODescription,
		Keywords:       content.Keywords,
	}

	if cfg.GenerateImages {
		if url, ok := services.TryGenerateImage(ctx, e.images, post.Title, post.Content); ok {
			post.FeaturedImageURL = &url
		}
	}

	post.SEOScore = services.ScoreSEO(post).Score
	return post, nil
}

// anchor is the latest of the stored anchor, the last pending slot and now.
// Starting from now keeps a queue that was paused for a while from being
// refilled with slots in the past.
func (e *Engine) anchor(cfg *models.BlogConfig, pending []*models.Post) time.Time {
	anchor := e.now()
	if cfg.LastScheduledAt != nil && cfg.LastScheduledAt.After(anchor) {
		anchor = *cfg.LastScheduledAt
	}
	for _, p := range pending {
		if p.ScheduledFor != nil && p.ScheduledFor.After(anchor) {
			anchor = *p.ScheduledFor
		}
	}
	return anchor
}

// finish stores the anchor reached by a run that created posts and returns
// runErr, or the storage error when runErr is nil.
func (e *Engine) finish(ctx context.Context, id uuid.UUID, anchor time.Time, result Result, runErr error) error {
	if runErr != nil {
		e.logger.Error().
			Err(runErr).
			Str("blogConfigId", id.String()).
			Int("created", result.Created).
			Msg("Scheduling run stopped early")
	}
	if result.Created == 0 {
		return runErr
	}

	// the anchor must be persisted even if the run was cancelled
	if err := e.configs.UpdateLastScheduledAt(context.WithoutCancel(ctx), id, anchor); err != nil {
		err = errs.NewDatabaseError("update", "blog config", err)
		if runErr == nil {
			return err
		}
		e.logger.Error().Err(err).Str("blogConfigId", id.String()).Msg("Failed to store scheduling anchor")
	}
	return runErr
}

func (e *Engine) loadConfig(ctx context.Context, id uuid.UUID) (*models.BlogConfig, error) {
	cfg, err := e.configs.FindByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NewConfigNotFoundError(id)
	}
	if err != nil {
		return nil, errs.NewDatabaseError("find", "blog config", err)
	}
	return cfg, nil
}

func (e *Engine) loadPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return loadPost(ctx, e.posts, id)
}

func loadPost(ctx context.Context, posts PostStore, id uuid.UUID) (*models.Post, error) {
	post, err := posts.FindByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.NewPostNotFoundError(id)
	}
	if err != nil {
		return nil, errs.NewDatabaseError("find", "post", fmt.Errorf("post %s: %w", id, err))
	}
	return post, nil
}
