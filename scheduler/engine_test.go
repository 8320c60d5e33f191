package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2024-01-01 08:00 UTC
var engineNow = date(2024, 1, 1, 8, 0, time.UTC)

type engineFixture struct {
	cfg     *models.BlogConfig
	configs *memConfigs
	posts   *memPosts
	topics  *scriptedTopics
	content *fakeContent
	engine  *Engine
}

func newEngineFixture(cfg *models.BlogConfig, posts ...*models.Post) *engineFixture {
	f := &engineFixture{
		cfg:     cfg,
		configs: newMemConfigs(cfg),
		posts:   newMemPosts(posts...),
		topics:  &scriptedTopics{},
		content: &fakeContent{},
	}
	f.engine = NewEngine(f.configs, f.posts, f.topics, f.content, nil, fixedClock(engineNow))
	return f
}

func (f *engineFixture) pending(t *testing.T) []*models.Post {
	t.Helper()
	pending, err := f.posts.FindPending(context.Background(), f.cfg.ID)
	require.NoError(t, err)
	return pending
}

func TestEnsureScheduledPostsFillsQueue(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))

	res, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Created)
	want := []time.Time{
		date(2024, 1, 1, 9, 0, time.UTC),
		date(2024, 1, 2, 9, 0, time.UTC),
		date(2024, 1, 3, 9, 0, time.UTC),
	}
	require.Len(t, res.Slots, 3)
	for i := range want {
		assert.True(t, want[i].Equal(res.Slots[i]), "slot %d: %s", i, res.Slots[i])
	}

	pending := f.pending(t)
	require.Len(t, pending, 3)
	for i, p := range pending {
		assert.Equal(t, models.PostStatusScheduled, p.Status)
		assert.Equal(t, f.cfg.UserID, p.UserID)
		assert.True(t, want[i].Equal(*p.ScheduledFor))
		assert.NotEmpty(t, p.Title)
		assert.NotEmpty(t, p.Content)
		assert.Nil(t, p.PublishedAt)
		assert.Nil(t, p.WordPressPostID)
	}

	last := f.configs.get(f.cfg.ID).LastScheduledAt
	require.NotNil(t, last)
	assert.True(t, want[2].Equal(*last))
}

func TestEnsureScheduledPostsIsIdempotent(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyWeekly))

	_, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 2)
	require.NoError(t, err)
	calls := f.content.calls

	res, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 2)
	require.NoError(t, err)

	assert.Zero(t, res.Created)
	assert.Equal(t, calls, f.content.calls)
	assert.Len(t, f.pending(t), 2)
}

func TestEnsureScheduledPostsContinuesAfterLastSlot(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyWeekly))

	_, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 2)
	require.NoError(t, err)
	res, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 4)
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)

	pending := f.pending(t)
	require.Len(t, pending, 4)
	for i := 1; i < len(pending); i++ {
		assert.Equal(t, 7*24*time.Hour, pending[i].ScheduledFor.Sub(*pending[i-1].ScheduledFor))
	}
}

func TestEnsureScheduledPostsAnchorsOnLatestPendingSlot(t *testing.T) {
	cfg := scheduledConfig(models.FrequencyDaily)
	existing := &models.Post{
		UserID:       cfg.UserID,
		BlogConfigID: cfg.ID,
		Title:        "Already queued",
		Status:       models.PostStatusScheduled,
		ScheduledFor: ptr(date(2024, 1, 10, 9, 0, time.UTC)),
	}
	f := newEngineFixture(cfg, existing)

	res, err := f.engine.EnsureScheduledPosts(context.Background(), cfg.ID, 2)
	require.NoError(t, err)

	require.Equal(t, 1, res.Created)
	assert.True(t, date(2024, 1, 11, 9, 0, time.UTC).Equal(res.Slots[0]))
}

func TestEnsureScheduledPostsSkipsSlotsInThePast(t *testing.T) {
	cfg := scheduledConfig(models.FrequencyDaily)
	cfg.LastScheduledAt = ptr(date(2023, 11, 1, 9, 0, time.UTC))
	f := newEngineFixture(cfg)

	res, err := f.engine.EnsureScheduledPosts(context.Background(), cfg.ID, 1)
	require.NoError(t, err)

	require.Equal(t, 1, res.Created)
	assert.True(t, date(2024, 1, 1, 9, 0, time.UTC).Equal(res.Slots[0]))
}

func TestEnsureScheduledPostsCountsDrafts(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))

	draft, err := f.engine.GenerateDraft(context.Background(), f.cfg.ID, "Mulching 101")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, draft.Status)
	assert.Nil(t, draft.ScheduledFor)
	assert.Zero(t, f.topics.calls)

	res, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
}

func TestEnsureScheduledPostsPartialFailure(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))
	f.content.err = errGeneratorDown
	f.content.failOn = 2

	res, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 3)
	assert.ErrorIs(t, err, errs.ErrContentGenerationFailed)
	assert.ErrorIs(t, err, errGeneratorDown)
	assert.Equal(t, 1, res.Created)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	first := *pending[0].ScheduledFor
	last := f.configs.get(f.cfg.ID).LastScheduledAt
	require.NotNil(t, last)
	assert.True(t, first.Equal(*last))

	f.content.err = nil
	res, err = f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	for _, slot := range res.Slots {
		assert.True(t, slot.After(first))
	}
}

func TestEnsureScheduledPostsNothingCreatedLeavesAnchor(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))
	f.topics.err = errGeneratorDown

	res, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 2)
	assert.ErrorIs(t, err, errs.ErrTopicGenerationFailed)
	assert.Zero(t, res.Created)
	assert.Nil(t, f.configs.get(f.cfg.ID).LastScheduledAt)
}

func TestEnsureScheduledPostsStorageFailure(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))
	f.posts.addErr = errors.New("disk full")

	_, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 1)
	assert.ErrorIs(t, err, errs.ErrDatabaseQuery)
}

func TestEnsureScheduledPostsConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.BlogConfig)
		want   error
	}{
		{"scheduling disabled", func(c *models.BlogConfig) { c.SchedulingEnabled = false }, errs.ErrSchedulingDisabled},
		{"no schedule time", func(c *models.BlogConfig) { c.ScheduleTime = nil }, errs.ErrScheduleTimeMissing},
		{"empty schedule time", func(c *models.BlogConfig) { c.ScheduleTime = ptr("") }, errs.ErrScheduleTimeMissing},
		{"weekly without day", func(c *models.BlogConfig) {
			c.PostingFrequency = models.FrequencyWeekly
			c.ScheduleDayOfWeek = nil
		}, errs.ErrInvalidSchedule},
		{"unknown timezone", func(c *models.BlogConfig) { c.Timezone = "Mars/Olympus" }, errs.ErrInvalidSchedule},
		{"malformed time", func(c *models.BlogConfig) { c.ScheduleTime = ptr("25:99") }, errs.ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := scheduledConfig(models.FrequencyDaily)
			tt.mutate(cfg)
			f := newEngineFixture(cfg)

			res, err := f.engine.EnsureScheduledPosts(context.Background(), cfg.ID, 2)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, res.Created)
			assert.Zero(t, f.content.calls)
		})
	}

	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))
	_, err := f.engine.EnsureScheduledPosts(context.Background(), uuid.New(), 2)
	assert.ErrorIs(t, err, errs.ErrConfigNotFound)
}

func TestEnsureScheduledPostsImages(t *testing.T) {
	cfg := scheduledConfig(models.FrequencyDaily)
	cfg.GenerateImages = true

	f := newEngineFixture(cfg)
	f.engine.images = fakeImages{err: errors.New("content policy violation")}
	res, err := f.engine.EnsureScheduledPosts(context.Background(), cfg.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	assert.Nil(t, f.pending(t)[0].FeaturedImageURL)

	f = newEngineFixture(cfg)
	f.engine.images = fakeImages{url: "https://cdn.example.com/featured/a.png"}
	_, err = f.engine.EnsureScheduledPosts(context.Background(), cfg.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, f.pending(t)[0].FeaturedImageURL)
	assert.Equal(t, "https://cdn.example.com/featured/a.png", *f.pending(t)[0].FeaturedImageURL)
}

func TestEnsureScheduledPostsPassesRecentTitlesToTopics(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))

	_, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 3)
	require.NoError(t, err)

	require.Len(t, f.topics.avoid, 3)
	assert.Empty(t, f.topics.avoid[0])
	assert.Equal(t, []string{"Topic number 1"}, f.topics.avoid[1])
	assert.Equal(t, []string{"Topic number 2", "Topic number 1"}, f.topics.avoid[2])
}

func TestEnsureScheduledPostsSerializesPerConfig(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.EnsureScheduledPosts(context.Background(), f.cfg.ID, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pending := f.pending(t)
	assert.Len(t, pending, 3)
	seen := make(map[time.Time]bool)
	for _, p := range pending {
		assert.False(t, seen[p.ScheduledFor.UTC()], "duplicate slot %s", p.ScheduledFor)
		seen[p.ScheduledFor.UTC()] = true
	}
}

func TestGenerateDraftPicksTopic(t *testing.T) {
	f := newEngineFixture(scheduledConfig(models.FrequencyDaily))

	draft, err := f.engine.GenerateDraft(context.Background(), f.cfg.ID, "")
	require.NoError(t, err)

	assert.Equal(t, "Topic number 1", draft.Topic)
	assert.Equal(t, f.cfg.ID, draft.BlogConfigID)
	assert.Equal(t, models.PostStatusDraft, f.posts.get(draft.ID).Status)

	_, err = f.engine.GenerateDraft(context.Background(), uuid.New(), "x")
	assert.ErrorIs(t, err, errs.ErrConfigNotFound)
}
