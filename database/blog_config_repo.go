package database

import (
	"context"
	"errors"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BlogConfigRepo struct {
	db *gorm.DB
}

func NewBlogConfigRepo(db *gorm.DB) *BlogConfigRepo {
	return &BlogConfigRepo{db}
}

// FindByID returns a blog config by its ID
func (r *BlogConfigRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.BlogConfig, error) {
	var cfg models.BlogConfig
	err := r.db.WithContext(ctx).First(&cfg, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// FindByUser returns every blog config owned by the user, oldest first
func (r *BlogConfigRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]*models.BlogConfig, error) {
	var cfgs []*models.BlogConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&cfgs).Error
	return cfgs, err
}

// FindSchedulingEnabled returns the configs the publish sweep keeps topped up
func (r *BlogConfigRepo) FindSchedulingEnabled(ctx context.Context) ([]*models.BlogConfig, error) {
	var cfgs []*models.BlogConfig
	err := r.db.WithContext(ctx).
		Where("scheduling_enabled = ?", true).
		Find(&cfgs).Error
	return cfgs, err
}

// Add inserts a new blog config into the database
func (r *BlogConfigRepo) Add(ctx context.Context, cfg *models.BlogConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

// Update updates an existing blog config in the database
func (r *BlogConfigRepo) Update(ctx context.Context, cfg *models.BlogConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}

// UpdateLastScheduledAt moves the scheduling anchor without touching the
// fields a user may be editing concurrently.
func (r *BlogConfigRepo) UpdateLastScheduledAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.BlogConfig{}).
		Where("id = ?", id).
		Update("last_scheduled_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a blog config together with its posts
func (r *BlogConfigRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("blog_config_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.BlogConfig{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return err
}
