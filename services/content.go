package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// GeneratedContent is the article an LLM wrote for one topic.
type GeneratedContent struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Excerpt        string   `json:"excerpt"`
	SEOTitle       string   `json:"seoTitle"`
	SEODescription string   `json:"seoDescription"`
	Keywords       []string `json:"keywords"`
}

type ContentGenerator interface {
	Generate(ctx context.Context, topic string, cfg *models.BlogConfig) (*GeneratedContent, error)
}

type TopicGenerator interface {
	GenerateTopics(ctx context.Context, cfg *models.BlogConfig, avoid []string, n int) ([]string, error)
}

// Provider is an LLM backend able to both suggest topics and write posts.
type Provider interface {
	ContentGenerator
	TopicGenerator
	Name() models.AIProvider
}

// LLMProvider drives a langchaingo model with the blog prompts. The
// OpenAI and Anthropic providers are thin constructors around it.
type LLMProvider struct {
	name      models.AIProvider
	llm       llms.Model
	maxTokens int
	sanitizer *bluemonday.Policy
}

func NewLLMProvider(name models.AIProvider, llm llms.Model) *LLMProvider {
	return &LLMProvider{
		name:      name,
		llm:       llm,
		maxTokens: 4096,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

type OpenAIProvider struct {
	*LLMProvider
}

func NewOpenAIProvider(apiKey, model string, client *http.Client) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errs.NewConfigError("OPENAI_API_KEY")
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(client),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAIProvider{NewLLMProvider(models.AIProviderOpenAI, llm)}, nil
}

type AnthropicProvider struct {
	*LLMProvider
}

func NewAnthropicProvider(apiKey, model string, client *http.Client) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errs.NewConfigError("ANTHROPIC_API_KEY")
	}
	llm, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
		anthropic.WithHTTPClient(client),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return &AnthropicProvider{NewLLMProvider(models.AIProviderAnthropic, llm)}, nil
}

func (p *LLMProvider) Name() models.AIProvider {
	return p.name
}

// Generate writes a full article for topic and returns it as structured
// fields. The body is sanitized HTML.
func (p *LLMProvider) Generate(ctx context.Context, topic string, cfg *models.BlogConfig) (*GeneratedContent, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, p.llm, contentPrompt(topic, cfg),
		llms.WithTemperature(0.7),
		llms.WithMaxTokens(p.maxTokens),
	)
	if err != nil {
		return nil, upstreamError(string(p.name), err)
	}

	var content GeneratedContent
	if err := decodeJSONObject(out, &content); err != nil {
		return nil, errs.NewMalformedResponseError(string(p.name), err)
	}

	content.Title = strings.TrimSpace(content.Title)
	content.Content = p.sanitizer.Sanitize(content.Content)
	if content.Title == "" || strings.TrimSpace(content.Content) == "" {
		return nil, errs.NewMalformedResponseError(string(p.name), fmt.Errorf("response has no title or content"))
	}
	if content.SEOTitle == "" {
		content.SEOTitle = content.Title
	}
	content.Keywords = lo.Uniq(lo.Filter(lo.Map(content.Keywords, func(k string, _ int) string {
		return strings.ToLower(strings.TrimSpace(k))
	}), func(k string, _ int) bool { return k != "" }))

	log.Debug().
		Str("provider", string(p.name)).
		Str("topic", topic).
		Str("title", content.Title).
		Msg("Generated post content")
	return &content, nil
}

// GenerateTopics asks the model for n fresh title ideas.
func (p *LLMProvider) GenerateTopics(ctx context.Context, cfg *models.BlogConfig, avoid []string, n int) ([]string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, p.llm, topicPrompt(cfg, avoid, n),
		llms.WithTemperature(0.9),
		llms.WithMaxTokens(1024),
	)
	if err != nil {
		return nil, upstreamError(string(p.name), err)
	}

	var topics []string
	if err := decodeJSONArray(out, &topics); err != nil {
		return nil, errs.NewMalformedResponseError(string(p.name), err)
	}
	return cleanTopics(topics), nil
}

// ProviderRegistry resolves the provider of a blog config once per call so
// the rest of the system only deals with ContentGenerator and TopicGenerator.
type ProviderRegistry struct {
	providers map[models.AIProvider]Provider
	fallback  models.AIProvider
}

func NewProviderRegistry(fallback models.AIProvider, providers ...Provider) *ProviderRegistry {
	r := &ProviderRegistry{
		providers: make(map[models.AIProvider]Provider, len(providers)),
		fallback:  fallback,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	if _, ok := r.providers[fallback]; !ok && len(providers) > 0 {
		r.fallback = providers[0].Name()
		log.Warn().
			Str("requested", string(fallback)).
			Str("using", string(r.fallback)).
			Msg("Default AI provider has no credentials")
	}
	return r
}

// For returns the provider configured on cfg, or the fallback when the
// config names none or one that is not registered.
func (r *ProviderRegistry) For(cfg *models.BlogConfig) (Provider, error) {
	if cfg != nil {
		if p, ok := r.providers[cfg.AIProvider]; ok {
			return p, nil
		}
		if cfg.AIProvider != "" && cfg.AIProvider != r.fallback {
			log.Warn().
				Str("requested", string(cfg.AIProvider)).
				Str("fallback", string(r.fallback)).
				Msg("AI provider not configured, using fallback")
		}
	}
	if p, ok := r.providers[r.fallback]; ok {
		return p, nil
	}
	return nil, errs.NewConfigError("AI_PROVIDER")
}

func (r *ProviderRegistry) Generate(ctx context.Context, topic string, cfg *models.BlogConfig) (*GeneratedContent, error) {
	p, err := r.For(cfg)
	if err != nil {
		return nil, err
	}
	return p.Generate(ctx, topic, cfg)
}

func (r *ProviderRegistry) GenerateTopics(ctx context.Context, cfg *models.BlogConfig, avoid []string, n int) ([]string, error) {
	p, err := r.For(cfg)
	if err != nil {
		return nil, err
	}
	return p.GenerateTopics(ctx, cfg, avoid, n)
}

func contentPrompt(topic string, cfg *models.BlogConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a complete, SEO-optimized blog post about %q.\n", topic)
	writeAudience(&b, cfg)
	b.WriteString(`
Requirements:
- 1200 to 1800 words, HTML body using <h2>, <h3>, <p>, <ul> and <strong> only (no <html>, <head> or <h1>)
- mention the primary keyword in the first paragraph
- an excerpt of one or two sentences
- an SEO title under 60 characters and a meta description of 120 to 160 characters
- five to eight lowercase keywords

Respond with only a JSON object of the form:
{"title": "...", "content": "...", "excerpt": "...", "seoTitle": "...", "seoDescription": "...", "keywords": ["..."]}`)
	return b.String()
}

func topicPrompt(cfg *models.BlogConfig, avoid []string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d engaging, specific blog post titles.\n", n)
	writeAudience(&b, cfg)
	if len(avoid) > 0 {
		b.WriteString("Do not repeat or closely paraphrase these existing titles:\n")
		for _, t := range avoid {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	b.WriteString(`Respond with only a JSON array of strings.`)
	return b.String()
}

func writeAudience(b *strings.Builder, cfg *models.BlogConfig) {
	if cfg == nil {
		return
	}
	if cfg.Niche != "" {
		fmt.Fprintf(b, "Niche: %s\n", cfg.Niche)
	}
	if cfg.TargetAudience != "" {
		fmt.Fprintf(b, "Target audience: %s\n", cfg.TargetAudience)
	}
	if cfg.Tone != "" {
		fmt.Fprintf(b, "Tone: %s\n", cfg.Tone)
	}
	if len(cfg.Keywords) > 0 {
		fmt.Fprintf(b, "Focus keywords: %s\n", strings.Join(cfg.Keywords, ", "))
	}
}

// decodeJSONObject decodes the outermost {...} of an LLM answer, ignoring
// markdown fences or chatter around it.
func decodeJSONObject(s string, v any) error {
	return decodeEnclosed(s, "{", "}", v)
}

func decodeJSONArray(s string, v any) error {
	return decodeEnclosed(s, "[", "]", v)
}

func decodeEnclosed(s, open, close string, v any) error {
	start := strings.Index(s, open)
	end := strings.LastIndex(s, close)
	if start < 0 || end < start {
		return fmt.Errorf("no JSON %s...%s in response", open, close)
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func cleanTopics(topics []string) []string {
	return lo.Uniq(lo.FilterMap(topics, func(t string, _ int) (string, bool) {
		t = strings.Trim(strings.TrimSpace(t), `"`)
		return t, t != ""
	}))
}
