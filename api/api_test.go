package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/config"
	"github.com/VanceGC/BlogMagic-sub000/database"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/scheduler"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type countingTopics struct {
	mu sync.Mutex
	n  int
}

func (c *countingTopics) GenerateTopics(context.Context, *models.BlogConfig, []string, int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return []string{fmt.Sprintf("Generated subject %d", c.n)}, nil
}

type echoContent struct{}

func (echoContent) Generate(_ context.Context, topic string, _ *models.BlogConfig) (*services.GeneratedContent, error) {
	return &services.GeneratedContent{
		Title:   topic,
		Content: "<h2>Intro</h2><p>" + topic + "</p>",
		Excerpt: topic,
	}, nil
}

type stubPublisher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubPublisher) Publish(context.Context, services.Credentials, services.PublishRequest, services.WordPressStatus) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "101", nil
}

type testAPI struct {
	handler   http.Handler
	db        database.Database
	publisher *stubPublisher
	userID    uuid.UUID
	token     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := database.New(gdb)
	require.NoError(t, db.Migrate())

	publisher := &stubPublisher{}
	engine := scheduler.NewEngine(db.BlogConfigRepo(), db.PostRepo(), &countingTopics{}, echoContent{}, nil)
	runner := scheduler.NewRunner(db.BlogConfigRepo(), db.PostRepo(), publisher, nil)

	settings := config.Load(map[string]string{
		"JWT_SECRET":            testSecret,
		"SCHEDULE_TARGET_COUNT": "2",
		"ACCEPTED_ORIGINS":      "https://app.example.com",
	})

	userID := uuid.New()
	return &testAPI{
		handler:   newRouter(settings, Dependencies{Database: db, Engine: engine, Runner: runner}),
		db:        db,
		publisher: publisher,
		userID:    userID,
		token:     signToken(t, userID.String(), time.Now().Add(time.Hour)),
	}
}

func signToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) createConfig(t *testing.T, body map[string]any) BlogConfigResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/blog-config", a.token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[BlogConfigResponse](t, rec)
}

func (a *testAPI) seedPost(t *testing.T, cfgID uuid.UUID, status models.PostStatus) *models.Post {
	t.Helper()
	post := &models.Post{
		UserID:       a.userID,
		BlogConfigID: cfgID,
		Title:        "Seeded",
		Content:      "<p>Seeded body</p>",
		Status:       status,
	}
	if status == models.PostStatusScheduled {
		at := time.Now().Add(24 * time.Hour)
		post.ScheduledFor = &at
	}
	require.NoError(t, a.db.PostRepo().Add(context.Background(), post))
	return post
}

func wordpressConfig() map[string]any {
	return map[string]any{
		"name":                 "Balcony Gardens",
		"wordpressUrl":         "https://blog.example.com",
		"wordpressUsername":    "editor",
		"wordpressAppPassword": "abcd efgh ijkl",
		"niche":                "urban gardening",
	}
}

func TestHealthzIsPublic(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}

func TestAuthentication(t *testing.T) {
	a := newTestAPI(t)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: a.userID.String()}).SignedString([]byte("other"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"missing", "", "missing access token"},
		{"expired", signToken(t, a.userID.String(), time.Now().Add(-time.Minute)), "expired access token"},
		{"wrong key", wrongKey, "invalid access token"},
		{"subject not a uuid", signToken(t, "alice", time.Now().Add(time.Hour)), "invalid access token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, "/blog-configs", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, decode[ErrorResponse](t, rec).Error, tt.want)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/blog-configs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBlogConfigCRUD(t *testing.T) {
	a := newTestAPI(t)

	created := a.createConfig(t, wordpressConfig())
	assert.Equal(t, "Balcony Gardens", created.Name)
	assert.True(t, created.HasWordPressCredentials)
	assert.Equal(t, models.FrequencyWeekly, created.PostingFrequency)
	assert.Equal(t, "UTC", created.Timezone)

	rec := a.do(t, http.MethodGet, "/blog-configs", a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "abcd efgh ijkl")
	assert.Len(t, decode[[]BlogConfigResponse](t, rec), 1)

	rec = a.do(t, http.MethodPut, "/blog-config/"+created.ID.String(), a.token, map[string]any{"tone": "playful"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "playful", decode[BlogConfigResponse](t, rec).Tone)

	stranger := signToken(t, uuid.NewString(), time.Now().Add(time.Hour))
	rec = a.do(t, http.MethodGet, "/blog-config/"+created.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodDelete, "/blog-config/"+created.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodDelete, "/blog-config/"+created.ID.String(), a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/blog-config/"+created.ID.String(), a.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBlogConfigValidation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/blog-config", a.token, map[string]any{"niche": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decode[ErrorResponse](t, rec).Field)

	body := wordpressConfig()
	body["schedulingEnabled"] = true
	body["scheduleTime"] = "09:00"
	rec = a.do(t, http.MethodPost, "/blog-config", a.token, body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body = wordpressConfig()
	body["unknownField"] = 1
	rec = a.do(t, http.MethodPost, "/blog-config", a.token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/blog-config/not-a-uuid", a.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnablingScheduleFillsQueue(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.createConfig(t, wordpressConfig())

	rec := a.do(t, http.MethodPut, "/blog-config/"+cfg.ID.String()+"/schedule", a.token, map[string]any{
		"schedulingEnabled": true,
		"postingFrequency":  "daily",
		"scheduleTime":      "09:00",
		"timezone":          "Europe/Berlin",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[BlogConfigResponse](t, rec).SchedulingEnabled)

	assert.Eventually(t, func() bool {
		pending, err := a.db.PostRepo().FindPending(context.Background(), cfg.ID)
		return err == nil && len(pending) == 2
	}, 5*time.Second, 20*time.Millisecond)

	rec = a.do(t, http.MethodPut, "/blog-config/"+cfg.ID.String()+"/schedule", a.token, map[string]any{"scheduleTime": "9 o'clock"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEnsureScheduled(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.createConfig(t, wordpressConfig())

	rec := a.do(t, http.MethodPost, "/blog-config/"+cfg.ID.String()+"/ensure-scheduled", a.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	stored, err := a.db.BlogConfigRepo().FindByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	stored.SchedulingEnabled = true
	stored.PostingFrequency = models.FrequencyMonthly
	stored.ScheduleTime = ptrTo("07:30")
	require.NoError(t, a.db.BlogConfigRepo().Update(context.Background(), stored))

	rec = a.do(t, http.MethodPost, "/blog-config/"+cfg.ID.String()+"/ensure-scheduled", a.token, map[string]any{"targetCount": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[scheduler.Result](t, rec)
	assert.Equal(t, 3, res.Created)
	assert.Len(t, res.Slots, 3)

	rec = a.do(t, http.MethodPost, "/blog-config/"+cfg.ID.String()+"/ensure-scheduled", a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[scheduler.Result](t, rec).Created)
}

func TestGenerateAndPublish(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.createConfig(t, wordpressConfig())

	rec := a.do(t, http.MethodPost, "/blog-config/"+cfg.ID.String()+"/generate", a.token, map[string]any{"topic": "Vertical herb walls"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[models.Post](t, rec)
	assert.Equal(t, models.PostStatusDraft, draft.Status)
	assert.Equal(t, "Vertical herb walls", draft.Title)

	rec = a.do(t, http.MethodPost, "/post/"+draft.ID.String()+"/publish", a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	published := decode[models.Post](t, rec)
	assert.Equal(t, models.PostStatusPublished, published.Status)
	require.NotNil(t, published.WordPressPostID)
	assert.Equal(t, "101", *published.WordPressPostID)

	rec = a.do(t, http.MethodPost, "/post/"+draft.ID.String()+"/publish", a.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, a.publisher.calls)

	rec = a.do(t, http.MethodPut, "/post/"+draft.ID.String(), a.token, map[string]any{"title": "Too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublishFailureAndRetry(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.createConfig(t, wordpressConfig())
	post := a.seedPost(t, cfg.ID, models.PostStatusScheduled)
	a.publisher.err = errors.New("connection refused")

	rec := a.do(t, http.MethodPost, "/post/"+post.ID.String()+"/publish", a.token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	stored, err := a.db.PostRepo().FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "connection refused")

	rec = a.do(t, http.MethodPost, "/post/"+post.ID.String()+"/retry", a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	retried := decode[models.Post](t, rec)
	assert.Equal(t, models.PostStatusDraft, retried.Status)
	assert.Nil(t, retried.ErrorMessage)
}

func TestRescheduleAndReassign(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.createConfig(t, wordpressConfig())
	other := a.createConfig(t, map[string]any{"name": "Second blog"})
	post := a.seedPost(t, cfg.ID, models.PostStatusDraft)
	path := "/post/" + post.ID.String()

	rec := a.do(t, http.MethodPut, path+"/reschedule", a.token, map[string]any{"scheduledFor": time.Now().Add(-time.Hour)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	at := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	rec = a.do(t, http.MethodPut, path+"/reschedule", a.token, map[string]any{"scheduledFor": at})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rescheduled := decode[models.Post](t, rec)
	assert.Equal(t, models.PostStatusScheduled, rescheduled.Status)
	assert.True(t, at.Equal(*rescheduled.ScheduledFor))

	rec = a.do(t, http.MethodPost, path+"/unschedule", a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PostStatusDraft, decode[models.Post](t, rec).Status)

	rec = a.do(t, http.MethodPut, path+"/reassign", a.token, map[string]any{"blogConfigId": uuid.New()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPut, path+"/reassign", a.token, map[string]any{"blogConfigId": other.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, other.ID, decode[models.Post](t, rec).BlogConfigID)
}

func TestPostsListAndSEO(t *testing.T) {
	a := newTestAPI(t)
	cfg := a.createConfig(t, wordpressConfig())
	draft := a.seedPost(t, cfg.ID, models.PostStatusDraft)
	a.seedPost(t, cfg.ID, models.PostStatusScheduled)

	rec := a.do(t, http.MethodGet, "/posts?status=draft&blogConfigId="+cfg.ID.String(), a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decode[[]models.Post](t, rec)
	require.Len(t, posts, 1)
	assert.Equal(t, draft.ID, posts[0].ID)

	rec = a.do(t, http.MethodGet, "/posts?status=archived", a.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stranger := signToken(t, uuid.NewString(), time.Now().Add(time.Hour))
	rec = a.do(t, http.MethodGet, "/posts", stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = a.do(t, http.MethodGet, "/post/"+draft.ID.String()+"/seo", a.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[services.SEOReport](t, rec).Checks, 8)

	rec = a.do(t, http.MethodPut, "/post/"+draft.ID.String(), a.token, map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodDelete, "/post/"+draft.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodDelete, "/post/"+draft.ID.String(), a.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func ptrTo[T any](v T) *T { return &v }
