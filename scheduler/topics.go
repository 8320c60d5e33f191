package scheduler

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/VanceGC/BlogMagic-sub000/services"
	"github.com/rs/zerolog/log"
)

const (
	recentTitleWindow = 10
	topicBatchSize    = 5
	maxSharedWords    = 2
)

// TopicSelector picks a topic for the next post of a blog config that does
// not repeat what the config published recently.
type TopicSelector struct {
	generator services.TopicGenerator
	batchSize int
}

func NewTopicSelector(generator services.TopicGenerator) *TopicSelector {
	return &TopicSelector{generator: generator, batchSize: topicBatchSize}
}

// SelectNextTopic asks the generator for a batch of candidates and returns
// the first one that shares at most two significant words with each of the
// ten most recent titles. existingTitles must be ordered newest first. When
// every candidate is too close to an existing title the first candidate is
// used anyway.
func (s *TopicSelector) SelectNextTopic(ctx context.Context, cfg *models.BlogConfig, existingTitles []string) (string, error) {
	recent := existingTitles
	if len(recent) > recentTitleWindow {
		recent = recent[:recentTitleWindow]
	}

	candidates, err := s.generator.GenerateTopics(ctx, cfg, recent, s.batchSize)
	if err != nil {
		return "", errs.NewTopicGenerationError(err)
	}
	if len(candidates) == 0 {
		return "", errs.NewTopicGenerationError(errors.New("generator returned no candidates"))
	}

	recentWords := make([]map[string]struct{}, len(recent))
	for i, title := range recent {
		recentWords[i] = significantWords(title)
	}

	for _, candidate := range candidates {
		if !overlapsAny(significantWords(candidate), recentWords) {
			return candidate, nil
		}
	}

	log.Info().
		Str("blogConfigId", cfg.ID.String()).
		Str("topic", candidates[0]).
		Int("candidates", len(candidates)).
		Msg("All topic candidates overlap recent titles, using the first one")
	return candidates[0], nil
}

func overlapsAny(words map[string]struct{}, titles []map[string]struct{}) bool {
	for _, title := range titles {
		shared := 0
		for w := range words {
			if _, ok := title[w]; ok {
				shared++
			}
		}
		if shared > maxSharedWords {
			return true
		}
	}
	return false
}

// significantWords returns the lower-cased words of s longer than three
// characters, punctuation removed.
func significantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) > 3 {
			words[w] = struct{}{}
		}
	}
	return words
}
