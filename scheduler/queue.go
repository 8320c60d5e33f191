package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/google/uuid"
)

// Manual edits of posts. Queue edits only apply to draft and scheduled posts
// and take the config lock so they never interleave with a fill run. Every
// edit also takes the post lock the Runner publishes under.

// Reschedule moves a pending post to a new future slot and marks it scheduled.
func (e *Engine) Reschedule(ctx context.Context, postID uuid.UUID, at time.Time) (*models.Post, error) {
	return e.editPending(ctx, postID, func(post *models.Post) error {
		if !at.After(e.now()) {
			return errs.NewInvalidScheduleError("scheduledFor", fmt.Errorf("%s is not in the future", at.Format(time.RFC3339)))
		}
		if err := transition(post, models.PostStatusScheduled, "draft or scheduled"); err != nil {
			return err
		}
		post.ScheduledFor = &at
		return nil
	})
}

// Unschedule turns a scheduled post back into a draft.
func (e *Engine) Unschedule(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	return e.editPending(ctx, postID, func(post *models.Post) error {
		if err := transition(post, models.PostStatusDraft, "draft or scheduled"); err != nil {
			return err
		}
		post.ScheduledFor = nil
		return nil
	})
}

// Reassign moves a pending post to another blog config of the same user.
func (e *Engine) Reassign(ctx context.Context, postID, blogConfigID uuid.UUID) (*models.Post, error) {
	target, err := e.loadConfig(ctx, blogConfigID)
	if err != nil {
		return nil, err
	}
	return e.editPending(ctx, postID, func(post *models.Post) error {
		if target.UserID != post.UserID {
			return errs.NewConfigNotFoundError(blogConfigID)
		}
		post.BlogConfigID = target.ID
		return nil
	})
}

// EditPost applies edit to a post that is not published yet, keeping its
// status. It waits for a publish of the same post that is in flight, so the
// edit sees the outcome of that publish.
func (e *Engine) EditPost(ctx context.Context, postID uuid.UUID, edit func(*models.Post) error) (*models.Post, error) {
	unlock := postLocks.Lock(postID)
	defer unlock()

	post, err := e.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return e.save(ctx, post, func(post *models.Post) error {
		if err := transition(post, post.Status, "draft, scheduled or failed"); err != nil {
			return err
		}
		return edit(post)
	})
}

func (e *Engine) editPending(ctx context.Context, postID uuid.UUID, edit func(*models.Post) error) (*models.Post, error) {
	post, err := e.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock(post.BlogConfigID)
	defer unlock()
	unlockPost := postLocks.Lock(postID)
	defer unlockPost()

	// reload under the lock, a fill run or publish may have changed it
	post, err = e.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.IsPending() {
		return nil, errs.NewInvalidStateError(post.ID, string(post.Status), "draft or scheduled")
	}
	return e.save(ctx, post, edit)
}

// save runs edit on post and stores the result conditioned on the status
// post was loaded with.
func (e *Engine) save(ctx context.Context, post *models.Post, edit func(*models.Post) error) (*models.Post, error) {
	from := post.Status
	if err := edit(post); err != nil {
		return nil, err
	}
	if err := e.posts.Update(ctx, post, from); err != nil {
		return nil, errs.NewDatabaseError("update", "post", err)
	}
	return post, nil
}

// transition moves post to next when its current status allows it.
func transition(post *models.Post, next models.PostStatus, wanted string) error {
	if !post.Status.CanTransitionTo(next) {
		return errs.NewInvalidStateError(post.ID, string(post.Status), wanted)
	}
	post.Status = next
	return nil
}
