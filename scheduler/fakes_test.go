package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/google/uuid"
)

type memConfigs struct {
	mu      sync.Mutex
	configs map[uuid.UUID]*models.BlogConfig
}

func newMemConfigs(configs ...*models.BlogConfig) *memConfigs {
	m := &memConfigs{configs: make(map[uuid.UUID]*models.BlogConfig)}
	for _, c := range configs {
		m.configs[c.ID] = c
	}
	return m
}

func (m *memConfigs) FindByID(_ context.Context, id uuid.UUID) (*models.BlogConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConfigs) UpdateLastScheduledAt(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.LastScheduledAt = &at
	return nil
}

func (m *memConfigs) FindSchedulingEnabled(context.Context) ([]*models.BlogConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BlogConfig
	for _, c := range m.configs {
		if c.SchedulingEnabled {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConfigs) get(id uuid.UUID) *models.BlogConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.configs[id]
	return &cp
}

type memPosts struct {
	mu     sync.Mutex
	posts  map[uuid.UUID]*models.Post
	seq    int
	order  map[uuid.UUID]int
	addErr error
}

func newMemPosts(posts ...*models.Post) *memPosts {
	m := &memPosts{posts: make(map[uuid.UUID]*models.Post), order: make(map[uuid.UUID]int)}
	for _, p := range posts {
		_ = m.Add(context.Background(), p)
	}
	return m
}

func (m *memPosts) FindByID(_ context.Context, id uuid.UUID) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPosts) FindPending(_ context.Context, blogConfigID uuid.UUID) ([]*models.Post, error) {
	return m.filter(func(p *models.Post) bool {
		return p.BlogConfigID == blogConfigID && p.IsPending()
	}), nil
}

func (m *memPosts) FindRecentTitles(_ context.Context, blogConfigID uuid.UUID, limit int) ([]string, error) {
	posts := m.filter(func(p *models.Post) bool { return p.BlogConfigID == blogConfigID })
	m.mu.Lock()
	sort.SliceStable(posts, func(i, j int) bool { return m.order[posts[i].ID] > m.order[posts[j].ID] })
	m.mu.Unlock()
	var titles []string
	for i, p := range posts {
		if i == limit {
			break
		}
		titles = append(titles, p.Title)
	}
	return titles, nil
}

func (m *memPosts) FindDue(_ context.Context, now time.Time) ([]*models.Post, error) {
	due := m.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusScheduled && p.ScheduledFor != nil && !p.ScheduledFor.After(now)
	})
	sort.SliceStable(due, func(i, j int) bool { return due[i].ScheduledFor.Before(*due[j].ScheduledFor) })
	return due, nil
}

func (m *memPosts) Add(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	m.seq++
	m.order[post.ID] = m.seq
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *memPosts) Update(_ context.Context, post *models.Post, from models.PostStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.posts[post.ID]
	if !ok || stored.Status != from {
		return errs.ErrStaleWrite
	}
	cp := *post
	m.posts[post.ID] = &cp
	return nil
}

func (m *memPosts) get(id uuid.UUID) *models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.posts[id]
	return &cp
}

func (m *memPosts) filter(keep func(*models.Post) bool) []*models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Post
	for _, p := range m.posts {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out
}

// scriptedTopics returns a fresh numbered batch per call unless batches is set.
type scriptedTopics struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	calls   int
	avoid   [][]string
}

func (s *scriptedTopics) GenerateTopics(_ context.Context, _ *models.BlogConfig, avoid []string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.avoid = append(s.avoid, avoid)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) > 0 {
		b := s.batches[0]
		if len(s.batches) > 1 {
			s.batches = s.batches[1:]
		}
		return b, nil
	}
	return []string{fmt.Sprintf("Topic number %d", s.calls)}, nil
}

type fakeContent struct {
	mu     sync.Mutex
	calls  int
	failOn int
	err    error
	topics []string
}

func (f *fakeContent) Generate(_ context.Context, topic string, _ *models.BlogConfig) (*services.GeneratedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && (f.failOn == 0 || f.calls == f.failOn) {
		return nil, f.err
	}
	f.topics = append(f.topics, topic)
	return &services.GeneratedContent{
		Title:          topic,
		Content:        "<p>" + topic + " explained.</p>",
		Excerpt:        "About " + topic,
		SEOTitle:       topic,
		SEODescription: "Everything about " + topic,
		Keywords:       []string{"gardening"},
	}, nil
}

type fakeImages struct {
	url string
	err error
}

func (f fakeImages) Generate(context.Context, string, string) (string, error) {
	return f.url, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	id       string
	err      error
	during   func()
	requests []services.PublishRequest
	statuses []services.WordPressStatus
	creds    []services.Credentials
}

func (f *fakePublisher) Publish(_ context.Context, creds services.Credentials, req services.PublishRequest, status services.WordPressStatus) (string, error) {
	if f.during != nil {
		f.during()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.statuses = append(f.statuses, status)
	f.creds = append(f.creds, creds)
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []services.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n services.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var errGeneratorDown = errors.New("llm unavailable")

func ptr[T any](v T) *T { return &v }

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func scheduledConfig(freq models.Frequency) *models.BlogConfig {
	cfg := &models.BlogConfig{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Name:                 "Balcony Gardens",
		WordPressURL:         "https://blog.example.com",
		WordPressUsername:    "editor",
		WordPressAppPassword: "abcd efgh",
		Niche:                "urban gardening",
		AIProvider:           models.AIProviderOpenAI,
		PostingFrequency:     freq,
		SchedulingEnabled:    true,
		ScheduleTime:         ptr("09:00"),
		Timezone:             "UTC",
	}
	if freq.NeedsDayOfWeek() {
		cfg.ScheduleDayOfWeek = ptr(int(time.Monday))
	}
	return cfg
}
