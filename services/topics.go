package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog/log"
)

const perplexityBaseURL = "https://api.perplexity.ai"

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
}

// PerplexityTopicGenerator asks Perplexity's online model for titles about
// what is currently trending in the niche.
type PerplexityTopicGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewPerplexityTopicGenerator(apiKey string, client *http.Client) *PerplexityTopicGenerator {
	return &PerplexityTopicGenerator{
		apiKey:  apiKey,
		model:   "sonar",
		baseURL: perplexityBaseURL,
		client:  client,
	}
}

func (g *PerplexityTopicGenerator) GenerateTopics(ctx context.Context, cfg *models.BlogConfig, avoid []string, n int) ([]string, error) {
	body := perplexityRequest{
		Model: g.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "You research trending subjects for blog editors. Answer with JSON only."},
			{Role: "user", Content: "Based on this week's news and search trends, " + topicPrompt(cfg, avoid, n)},
		},
	}

	var res perplexityResponse
	err := requests.URL(g.baseURL+"/chat/completions").
		Client(g.client).
		Method(http.MethodPost).
		UserAgent(userAgent).
		Bearer(g.apiKey).
		BodyJSON(body).
		AddValidator(checkStatus("perplexity", errorEnvelope)).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return nil, upstreamError("perplexity", err)
	}
	if len(res.Choices) == 0 {
		return nil, errs.NewMalformedResponseError("perplexity", fmt.Errorf("no choices"))
	}

	var topics []string
	if err := decodeJSONArray(res.Choices[0].Message.Content, &topics); err != nil {
		return nil, errs.NewMalformedResponseError("perplexity", err)
	}
	return cleanTopics(topics), nil
}

// FallbackTopicGenerator tries each source in order and returns the first
// non-empty batch.
type FallbackTopicGenerator struct {
	sources []TopicGenerator
}

func NewFallbackTopicGenerator(sources ...TopicGenerator) *FallbackTopicGenerator {
	return &FallbackTopicGenerator{sources: sources}
}

func (g *FallbackTopicGenerator) GenerateTopics(ctx context.Context, cfg *models.BlogConfig, avoid []string, n int) ([]string, error) {
	var failures []string
	for i, source := range g.sources {
		topics, err := source.GenerateTopics(ctx, cfg, avoid, n)
		if err == nil && len(topics) > 0 {
			return topics, nil
		}
		if err == nil {
			err = fmt.Errorf("empty batch")
		}
		log.Warn().Err(err).Int("source", i).Msg("Topic source failed, trying next")
		failures = append(failures, errs.FullMessage(err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all topic sources failed: %s", strings.Join(failures, "; "))
}

// errorEnvelope pulls the message out of the {"error": {"message": ...}}
// envelope that OpenAI compatible APIs answer with.
func errorEnvelope(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.Error.Message
	}
	return ""
}
