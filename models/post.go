package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PostStatus is the lifecycle state of a generated post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
)

// postTransitions lists the statuses a post may move to. Staying in the same
// status means the post may still be edited; published posts are frozen.
var postTransitions = map[PostStatus][]PostStatus{
	PostStatusDraft:     {PostStatusDraft, PostStatusScheduled, PostStatusPublished, PostStatusFailed},
	PostStatusScheduled: {PostStatusScheduled, PostStatusDraft, PostStatusPublished, PostStatusFailed},
	// manual retry only
	PostStatusFailed: {PostStatusFailed, PostStatusDraft},
}

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished, PostStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a post may move from s to next.
func (s PostStatus) CanTransitionTo(next PostStatus) bool {
	for _, allowed := range postTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Post is a generated article belonging to one blog config and one user.
type Post struct {
	ID           uuid.UUID `json:"id" db:"id" gorm:"type:uuid;primaryKey;not null"`
	UserID       uuid.UUID `json:"userId" db:"user_id" gorm:"type:uuid;not null;index:idx_post_user_id"`
	BlogConfigID uuid.UUID `json:"blogConfigId" db:"blog_config_id" gorm:"type:uuid;not null;index:idx_post_blog_config_status,priority:1"`

	Title            string                      `json:"title" db:"title" gorm:"type:text;not null"`
	Topic            string                      `json:"topic" db:"topic" gorm:"type:text"`
	Content          string                      `json:"content" db:"content" gorm:"type:text;not null"`
	Excerpt          string                      `json:"excerpt" db:"excerpt" gorm:"type:text"`
	SEOTitle         string                      `json:"seoTitle" db:"seo_title" gorm:"column:seo_title;type:text"`
	SEODescription   string                      `json:"seoDescription" db:"seo_description" gorm:"column:seo_description;type:text"`
	SEOScore         int                         `json:"seoScore" db:"seo_score" gorm:"column:seo_score;not null;default:0"`
	Keywords         datatypes.JSONSlice[string] `json:"keywords" db:"keywords"`
	FeaturedImageURL *string                     `json:"featuredImageUrl,omitempty" db:"featured_image_url" gorm:"type:text"`
	CategoryIDs      datatypes.JSONSlice[int]    `json:"categoryIds,omitempty" db:"category_ids" gorm:"column:category_ids"`

	Status          PostStatus `json:"status" db:"status" gorm:"type:text;not null;default:'draft';index:idx_post_blog_config_status,priority:2"`
	ScheduledFor    *time.Time `json:"scheduledFor,omitempty" db:"scheduled_for" gorm:"index"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty" db:"published_at"`
	ErrorMessage    *string    `json:"errorMessage,omitempty" db:"error_message" gorm:"type:text"`
	WordPressPostID *string    `json:"wordpressPostId,omitempty" db:"wordpress_post_id" gorm:"column:wordpress_post_id;type:text"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// BeforeSave stores instants in UTC so they compare and sort the same way on
// every driver.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.ScheduledFor = utc(p.ScheduledFor)
	p.PublishedAt = utc(p.PublishedAt)
	return nil
}

// IsPending reports whether the post still counts towards the pending queue.
func (p *Post) IsPending() bool {
	return p.Status == PostStatusDraft || p.Status == PostStatusScheduled
}
