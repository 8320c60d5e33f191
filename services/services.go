package services

import (
	"context"
	"net/http"

	"github.com/VanceGC/BlogMagic-sub000/config"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/rs/zerolog/log"
)

// Services bundles the outbound collaborators the scheduler runs against.
type Services struct {
	Content   ContentGenerator
	Topics    TopicGenerator
	Images    ImageGenerator
	Publisher Publisher
	Notifier  Notifier
}

// New builds the collaborators that have credentials in s. Missing image or
// notification credentials only disable those features; at least one LLM
// provider is required.
func New(ctx context.Context, s config.Settings) (*Services, error) {
	client := NewHTTPClient(s.HTTPTimeout)

	registry, err := newRegistry(s, client)
	if err != nil {
		return nil, err
	}

	var topics TopicGenerator = registry
	if s.PerplexityKey != "" {
		topics = NewFallbackTopicGenerator(NewPerplexityTopicGenerator(s.PerplexityKey, client), registry)
	}

	var store ImageStore
	if s.S3Bucket != "" {
		store, err = NewS3ImageStore(ctx, s.AWSRegion, s.S3Bucket, s.S3BaseURL)
		if err != nil {
			return nil, err
		}
	}

	return &Services{
		Content:   registry,
		Topics:    topics,
		Images:    newImageGenerator(s, store, client),
		Publisher: NewWordPressPublisher(client),
		Notifier:  NewNotifierFromSettings(s, client),
	}, nil
}

func newRegistry(s config.Settings, client *http.Client) (*ProviderRegistry, error) {
	var providers []Provider
	if s.OpenAIAPIKey != "" {
		p, err := NewOpenAIProvider(s.OpenAIAPIKey, s.OpenAIModel, client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if s.AnthropicAPIKey != "" {
		p, err := NewAnthropicProvider(s.AnthropicAPIKey, s.AnthropicModel, client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	registry := NewProviderRegistry(models.AIProvider(s.AIProvider), providers...)
	if _, err := registry.For(nil); err != nil {
		return nil, err
	}
	return registry, nil
}

func newImageGenerator(s config.Settings, store ImageStore, client *http.Client) ImageGenerator {
	switch s.ImageProvider {
	case "stability":
		if s.StabilityAPIKey == "" || store == nil {
			log.Warn().Msg("Stability images need STABILITY_API_KEY and S3_BUCKET, image generation disabled")
			return nil
		}
		return NewStabilityImageGenerator(s.StabilityAPIKey, store, client)
	case "openai", "":
		if s.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set, image generation disabled")
			return nil
		}
		var gen ImageGenerator = NewOpenAIImageGenerator(s.OpenAIAPIKey, s.OpenAIImageSize, client)
		if store != nil {
			gen = NewRehostingImageGenerator(gen, store, client)
		}
		return gen
	}
	log.Warn().Str("provider", s.ImageProvider).Msg("Unknown image provider, image generation disabled")
	return nil
}
