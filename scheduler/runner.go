package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner hands posts over to WordPress and records the outcome on the post.
type Runner struct {
	clock
	configs   BlogConfigStore
	posts     PostStore
	publisher services.Publisher
	notifier  services.Notifier
	locks     *keyedMutex
	logger    zerolog.Logger
}

// NewRunner wires the runner. A nil notifier disables failure notifications.
func NewRunner(configs BlogConfigStore, posts PostStore, publisher services.Publisher, notifier services.Notifier, opts ...Option) *Runner {
	if notifier == nil {
		notifier = services.NoopNotifier{}
	}
	return &Runner{
		clock:     newClock(opts),
		configs:   configs,
		posts:     posts,
		publisher: publisher,
		notifier:  notifier,
		locks:     postLocks,
		logger:    log.With().Str("component", "publisher").Logger(),
	}
}

// PublishDuePost publishes a scheduled post. Any other status is rejected
// with an invalid state error and the post is left untouched.
func (r *Runner) PublishDuePost(ctx context.Context, postID uuid.UUID) error {
	_, err := r.publishIf(ctx, postID, "scheduled", func(s models.PostStatus) bool {
		return s == models.PostStatusScheduled
	})
	return err
}

// PublishNow publishes a draft or scheduled post immediately.
func (r *Runner) PublishNow(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	return r.publishIf(ctx, postID, "draft or scheduled", func(s models.PostStatus) bool {
		return s == models.PostStatusDraft || s == models.PostStatusScheduled
	})
}

// RetryFailed resets a failed post to a draft so it can be edited,
// rescheduled or published again.
func (r *Runner) RetryFailed(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	unlock := r.locks.Lock(postID)
	defer unlock()

	post, err := loadPost(ctx, r.posts, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusFailed {
		return nil, errs.NewInvalidStateError(post.ID, string(post.Status), "failed")
	}
	if err := transition(post, models.PostStatusDraft, "failed"); err != nil {
		return nil, err
	}
	post.ErrorMessage = nil
	post.ScheduledFor = nil
	if err := r.posts.Update(ctx, post, models.PostStatusFailed); err != nil {
		return nil, errs.NewDatabaseError("update", "post", err)
	}
	return post, nil
}

func (r *Runner) publishIf(ctx context.Context, postID uuid.UUID, wanted string, allowed func(models.PostStatus) bool) (*models.Post, error) {
	unlock := r.locks.Lock(postID)
	defer unlock()

	post, err := loadPost(ctx, r.posts, postID)
	if err != nil {
		return nil, err
	}
	if !allowed(post.Status) || !post.Status.CanTransitionTo(models.PostStatusPublished) {
		return nil, errs.NewInvalidStateError(post.ID, string(post.Status), wanted)
	}
	return post, r.publish(ctx, post)
}

func (r *Runner) publish(ctx context.Context, post *models.Post) error {
	logger := r.logger.With().
		Str("postId", post.ID.String()).
		Str("blogConfigId", post.BlogConfigID.String()).
		Logger()

	cfg, err := r.configs.FindByID(ctx, post.BlogConfigID)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.NewConfigNotFoundError(post.BlogConfigID)
	}
	if err != nil {
		return errs.NewDatabaseError("find", "blog config", err)
	}

	if !cfg.HasCredentials() {
		missing := errs.NewCredentialsMissingError(cfg.ID)
		r.fail(ctx, logger, post, cfg, missing)
		return missing
	}

	status := services.WordPressDraft
	if cfg.AutoPublish {
		status = services.WordPressPublish
	}

	req := services.PublishRequest{
		Title:       post.Title,
		Content:     post.Content,
		Excerpt:     post.Excerpt,
		CategoryIDs: post.CategoryIDs,
	}
	if post.FeaturedImageURL != nil {
		req.FeaturedImageURL = *post.FeaturedImageURL
	}
	creds := services.Credentials{
		URL:         cfg.WordPressURL,
		Username:    cfg.WordPressUsername,
		AppPassword: cfg.WordPressAppPassword,
	}

	externalID, err := r.publisher.Publish(ctx, creds, req, status)
	if err != nil {
		r.fail(ctx, logger, post, cfg, err)
		return errs.NewPublishFailedError(post.ID, err)
	}

	from := post.Status
	if err := transition(post, models.PostStatusPublished, "draft or scheduled"); err != nil {
		return err
	}
	now := r.now()
	post.WordPressPostID = &externalID
	post.PublishedAt = &now
	post.ErrorMessage = nil
	if err := r.posts.Update(context.WithoutCancel(ctx), post, from); err != nil {
		logger.Error().Err(err).Str("wordpressId", externalID).Msg("Published to WordPress but failed to record it")
		return errs.NewDatabaseError("update", "post", err)
	}

	logger.Info().
		Str("wordpressId", externalID).
		Str("wordpressStatus", string(status)).
		Msg("Post published")
	return nil
}

// fail stores the error text on the post, marks it failed and notifies the
// operator. Storage and notification problems are only logged.
func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, post *models.Post, cfg *models.BlogConfig, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := errs.FullMessage(cause)

	from := post.Status
	if err := transition(post, models.PostStatusFailed, "draft or scheduled"); err != nil {
		logger.Error().Err(err).Msg("Failed to mark post as failed")
	} else {
		post.ErrorMessage = &msg
		if err := r.posts.Update(ctx, post, from); err != nil {
			logger.Error().Err(err).Msg("Failed to mark post as failed")
		}
	}
	logger.Warn().Str("error", msg).Msg("Publishing failed")

	n := services.Notification{
		Subject: fmt.Sprintf("Publishing failed for %q", post.Title),
		Body:    fmt.Sprintf("Post %s of blog %q could not be published: %s", post.ID, cfg.Name, msg),
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		logger.Error().Err(err).Msg("Failed to send failure notification")
	}
}
