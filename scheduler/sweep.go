package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type dueLister interface {
	FindDue(ctx context.Context, now time.Time) ([]*models.Post, error)
}

type enabledLister interface {
	FindSchedulingEnabled(ctx context.Context) ([]*models.BlogConfig, error)
}

type duePublisher interface {
	PublishDuePost(ctx context.Context, postID uuid.UUID) error
}

type queueFiller interface {
	EnsureScheduledPosts(ctx context.Context, blogConfigID uuid.UUID, targetCount int) (Result, error)
}

// SweepReport summarizes one sweep. Deferred counts configs whose fill was
// skipped because an earlier failure is still backing off.
type SweepReport struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Created   int `json:"created"`
	Deferred  int `json:"deferred"`
}

// SweepConfig tunes a Sweeper. RetryBackoff is the pause after the first
// failed fill of a config; it doubles with every further failure.
type SweepConfig struct {
	Interval     time.Duration
	TargetCount  int
	Concurrency  int
	RetryBackoff time.Duration
}

const maxRetryBackoff = 6 * time.Hour

// fillFailure is the current failure streak of one config.
type fillFailure struct {
	streak  int
	message string
	retryAt time.Time
}

// Sweeper periodically publishes due posts and tops up the queues of all
// scheduling-enabled configs. Posts of one config are published in slot
// order; different configs are handled in parallel.
type Sweeper struct {
	clock
	cfg      SweepConfig
	posts    dueLister
	configs  enabledLister
	runner   duePublisher
	engine   queueFiller
	notifier services.Notifier
	cron     *cron.Cron
	logger   zerolog.Logger

	mu       sync.Mutex
	failures map[uuid.UUID]*fillFailure
}

func NewSweeper(cfg SweepConfig, posts dueLister, configs enabledLister, runner duePublisher, engine queueFiller, notifier services.Notifier, opts ...Option) *Sweeper {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 15 * time.Minute
	}
	if notifier == nil {
		notifier = services.NoopNotifier{}
	}
	logger := log.With().Str("component", "sweeper").Logger()
	return &Sweeper{
		clock:    newClock(opts),
		cfg:      cfg,
		posts:    posts,
		configs:  configs,
		runner:   runner,
		engine:   engine,
		notifier: notifier,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		logger:   logger,
		failures: make(map[uuid.UUID]*fillFailure),
	}
}

// Start schedules RunOnce every interval. Runs never overlap.
func (s *Sweeper) Start() error {
	schedule := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Sweeper started")
	return nil
}

// Stop stops scheduling new sweeps and waits for a running one, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce publishes every due post and then refills the pending queues.
func (s *Sweeper) RunOnce(ctx context.Context) SweepReport {
	var (
		mu     sync.Mutex
		report SweepReport
	)
	count := func(f func(*SweepReport)) {
		mu.Lock()
		f(&report)
		mu.Unlock()
	}

	now := s.now()
	due, err := s.posts.FindDue(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due posts")
	}

	var publish errgroup.Group
	publish.SetLimit(s.cfg.Concurrency)
	for _, batch := range groupByConfig(due) {
		batch := batch
		publish.Go(func() error {
			for _, post := range batch {
				err := s.runner.PublishDuePost(ctx, post.ID)
				if err == nil {
					count(func(r *SweepReport) { r.Published++ })
					continue
				}
				if errs.IsInvalidStateError(err) {
					// unscheduled or published since FindDue
					s.logger.Debug().Str("postId", post.ID.String()).Msg("Due post changed, skipped")
					continue
				}
				event := s.logger.Error()
				if errs.IsPublishFailedError(err) {
					// the runner already recorded and reported the failure
					event = s.logger.Warn()
				}
				event.Err(err).Str("postId", post.ID.String()).Msg("Due post not published")
				count(func(r *SweepReport) { r.Failed++ })
			}
			return nil
		})
	}
	_ = publish.Wait()

	configs, err := s.configs.FindSchedulingEnabled(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list scheduling-enabled configs")
	} else {
		s.forgetDisabled(configs)
	}

	var fill errgroup.Group
	fill.SetLimit(s.cfg.Concurrency)
	for _, cfg := range configs {
		cfg := cfg
		if !s.fillDue(cfg.ID, now) {
			count(func(r *SweepReport) { r.Deferred++ })
			continue
		}
		fill.Go(func() error {
			res, err := s.engine.EnsureScheduledPosts(ctx, cfg.ID, s.cfg.TargetCount)
			count(func(r *SweepReport) { r.Created += res.Created })
			s.recordFill(ctx, cfg, now, err)
			return nil
		})
	}
	_ = fill.Wait()

	if report != (SweepReport{}) {
		s.logger.Info().
			Int("published", report.Published).
			Int("failed", report.Failed).
			Int("created", report.Created).
			Int("deferred", report.Deferred).
			Msg("Sweep finished")
	}
	return report
}

// fillDue reports whether the config is not backing off from a failure.
func (s *Sweeper) fillDue(id uuid.UUID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[id]
	return !ok || !now.Before(f.retryAt)
}

// forgetDisabled drops the failure streaks of configs that are no longer
// scheduled, so re-enabling one starts without a backoff.
func (s *Sweeper) forgetDisabled(enabled []*models.BlogConfig) {
	keep := make(map[uuid.UUID]bool, len(enabled))
	for _, cfg := range enabled {
		keep[cfg.ID] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.failures {
		if !keep[id] {
			delete(s.failures, id)
		}
	}
}

// recordFill tracks the failure streak of a config. Upstream failures back
// off exponentially. Config errors are retried every sweep since they fail
// before any generation. The operator is notified when a streak starts and
// when a config error changes.
func (s *Sweeper) recordFill(ctx context.Context, cfg *models.BlogConfig, now time.Time, err error) {
	logger := s.logger.With().Str("blogConfigId", cfg.ID.String()).Logger()

	s.mu.Lock()
	f, failing := s.failures[cfg.ID]
	if err == nil {
		delete(s.failures, cfg.ID)
		s.mu.Unlock()
		if failing {
			logger.Info().Int("failures", f.streak).Msg("Pending queue filled again")
		}
		return
	}

	msg := errs.FullMessage(err)
	configErr := errs.IsScheduleConfigError(err)
	if !failing {
		f = &fillFailure{}
		s.failures[cfg.ID] = f
	}
	f.streak++
	notify := f.streak == 1 || (configErr && f.message != msg)
	f.message = msg
	if !configErr {
		f.retryAt = now.Add(retryBackoff(s.cfg.RetryBackoff, f.streak))
	}
	streak, retryAt := f.streak, f.retryAt
	s.mu.Unlock()

	event := logger.Error().Str("error", msg).Int("failures", streak)
	if !configErr {
		event = event.Time("retryAt", retryAt)
	}
	event.Msg("Failed to fill pending queue")

	if !notify {
		return
	}
	n := services.Notification{
		Subject: fmt.Sprintf("Scheduling failed for %q", cfg.Name),
		Body:    fmt.Sprintf("Blog %q (%s) could not be topped up: %s", cfg.Name, cfg.ID, msg),
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		logger.Error().Err(err).Msg("Failed to send failure notification")
	}
}

// retryBackoff doubles base for every failure after the first, up to
// maxRetryBackoff.
func retryBackoff(base time.Duration, streak int) time.Duration {
	d := base
	for i := 1; i < streak && d < maxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

// groupByConfig keeps the order of posts within each config.
func groupByConfig(posts []*models.Post) [][]*models.Post {
	index := make(map[uuid.UUID]int)
	var groups [][]*models.Post
	for _, p := range posts {
		i, ok := index[p.BlogConfigID]
		if !ok {
			i = len(groups)
			index[p.BlogConfigID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], p)
	}
	return groups
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
