package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Frequency is how often a blog config gets a new scheduled post.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// NeedsDayOfWeek reports whether the frequency is anchored on a weekday.
func (f Frequency) NeedsDayOfWeek() bool {
	return f == FrequencyWeekly || f == FrequencyBiweekly
}

// AIProvider selects the LLM backend used for topics and content.
type AIProvider string

const (
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
)

// BlogConfig is a user's WordPress target together with its content
// preferences and scheduling parameters.
type BlogConfig struct {
	ID     uuid.UUID `json:"id" db:"id" gorm:"type:uuid;primaryKey;not null"`
	UserID uuid.UUID `json:"userId" db:"user_id" gorm:"type:uuid;not null;index:idx_blog_config_user_id"`
	Name   string    `json:"name" db:"name" gorm:"type:text;not null"`

	WordPressURL         string `json:"wordpressUrl" db:"wordpress_url" gorm:"column:wordpress_url;type:text"`
	WordPressUsername    string `json:"wordpressUsername" db:"wordpress_username" gorm:"column:wordpress_username;type:text"`
	WordPressAppPassword string `json:"-" db:"wordpress_app_password" gorm:"column:wordpress_app_password;type:text"`

	Niche          string                      `json:"niche" db:"niche" gorm:"type:text"`
	TargetAudience string                      `json:"targetAudience" db:"target_audience" gorm:"type:text"`
	Tone           string                      `json:"tone" db:"tone" gorm:"type:text"`
	Keywords       datatypes.JSONSlice[string] `json:"keywords" db:"keywords"`
	AIProvider     AIProvider                  `json:"aiProvider" db:"ai_provider" gorm:"column:ai_provider;type:text;not null;default:'openai'"`
	GenerateImages bool                        `json:"generateImages" db:"generate_images" gorm:"not null"`

	PostingFrequency  Frequency  `json:"postingFrequency" db:"posting_frequency" gorm:"type:text;not null;default:'weekly'"`
	SchedulingEnabled bool       `json:"schedulingEnabled" db:"scheduling_enabled" gorm:"not null;default:false;index"`
	AutoPublish       bool       `json:"autoPublish" db:"auto_publish" gorm:"not null;default:false"`
	ScheduleTime      *string    `json:"scheduleTime,omitempty" db:"schedule_time" gorm:"type:text"`
	ScheduleDayOfWeek *int       `json:"scheduleDayOfWeek,omitempty" db:"schedule_day_of_week"`
	Timezone          string     `json:"timezone" db:"timezone" gorm:"type:text;not null;default:'UTC'"`
	LastScheduledAt   *time.Time `json:"lastScheduledAt,omitempty" db:"last_scheduled_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (c *BlogConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *BlogConfig) BeforeSave(tx *gorm.DB) error {
	c.LastScheduledAt = utc(c.LastScheduledAt)
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// HasCredentials reports whether all three WordPress credentials are set.
func (c *BlogConfig) HasCredentials() bool {
	return strings.TrimSpace(c.WordPressURL) != "" &&
		strings.TrimSpace(c.WordPressUsername) != "" &&
		strings.TrimSpace(c.WordPressAppPassword) != ""
}

// Location resolves the configured IANA zone, treating empty as UTC.
func (c *BlogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateSchedule checks the scheduling invariants. A config with scheduling
// disabled only needs a known frequency and timezone.
func (c *BlogConfig) ValidateSchedule() error {
	if !c.PostingFrequency.Valid() {
		return fmt.Errorf("unsupported posting frequency %q", c.PostingFrequency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ScheduleTime != nil {
		if _, _, err := ParseClock(*c.ScheduleTime); err != nil {
			return err
		}
	}
	if c.ScheduleDayOfWeek != nil && (*c.ScheduleDayOfWeek < 0 || *c.ScheduleDayOfWeek > 6) {
		return fmt.Errorf("schedule day of week %d is outside 0..6", *c.ScheduleDayOfWeek)
	}
	if !c.SchedulingEnabled {
		return nil
	}
	if c.ScheduleTime == nil || *c.ScheduleTime == "" {
		return fmt.Errorf("schedule time is required when scheduling is enabled")
	}
	if c.PostingFrequency.NeedsDayOfWeek() && c.ScheduleDayOfWeek == nil {
		return fmt.Errorf("schedule day of week is required for %s posting", c.PostingFrequency)
	}
	return nil
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("schedule time %q is not HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
