package database

import (
	"context"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

var pendingStatuses = []models.PostStatus{models.PostStatusDraft, models.PostStatusScheduled}

// PostFilter narrows FindByUser. Zero values match everything.
type PostFilter struct {
	BlogConfigID *uuid.UUID
	Status       models.PostStatus
}

type PostRepo struct {
	db *gorm.DB
}

func NewPostRepo(db *gorm.DB) *PostRepo {
	return &PostRepo{db}
}

// FindByID returns a post by its ID. It always reads from the primary: the
// status it returns gates publishing and queue edits.
func (r *PostRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).First(&post, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

// FindPending returns the pending queue (draft and scheduled posts) of a blog
// config ordered by scheduled time, unscheduled drafts last. Read from the
// primary so a fill run never counts a stale queue.
func (r *PostRepo) FindPending(ctx context.Context, blogConfigID uuid.UUID) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("blog_config_id = ? AND status IN ?", blogConfigID, pendingStatuses).
		Order("scheduled_for IS NULL, scheduled_for ASC").
		Find(&posts).Error
	return posts, err
}

// FindRecentTitles returns up to limit titles of the config's posts, most
// recently created first.
func (r *PostRepo) FindRecentTitles(ctx context.Context, blogConfigID uuid.UUID, limit int) ([]string, error) {
	var titles []string
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("blog_config_id = ?", blogConfigID).
		Order("created_at DESC").
		Limit(limit).
		Pluck("title", &titles).Error
	return titles, err
}

// FindDue returns scheduled posts whose slot is at or before now, grouped by
// blog config and ordered by slot within each config.
func (r *PostRepo) FindDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.PostStatusScheduled, now.UTC()).
		Order("blog_config_id ASC, scheduled_for ASC").
		Find(&posts).Error
	return posts, err
}

// FindByUser returns the user's posts matching filter, newest first
func (r *PostRepo) FindByUser(ctx context.Context, userID uuid.UUID, filter PostFilter) ([]*models.Post, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.BlogConfigID != nil {
		q = q.Where("blog_config_id = ?", *filter.BlogConfigID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var posts []*models.Post
	err := q.Order("created_at DESC").Find(&posts).Error
	return posts, err
}

// Add inserts a new post into the database
func (r *PostRepo) Add(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// Update writes every column of post, but only while the stored status is
// still from. A row that moved on since it was read is left alone and
// errs.ErrStaleWrite is returned, so a stale copy can never undo a publish.
func (r *PostRepo) Update(ctx context.Context, post *models.Post, from models.PostStatus) error {
	res := r.db.WithContext(ctx).
		Model(post).
		Where("status = ?", from).
		Select("*").
		Updates(post)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrStaleWrite
	}
	return nil
}

// Delete removes a post from the database by id
func (r *PostRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
