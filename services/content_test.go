package services

import (
	"context"
	"errors"
	"testing"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/VanceGC/BlogMagic-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testConfig() *models.BlogConfig {
	return &models.BlogConfig{
		Name:           "Garden notes",
		Niche:          "urban gardening",
		TargetAudience: "apartment dwellers",
		Tone:           "friendly",
		Keywords:       []string{"balcony garden"},
		AIProvider:     models.AIProviderOpenAI,
	}
}

func TestLLMProviderGenerate(t *testing.T) {
	llm := &fakeLLM{reply: "Sure! Here it is:\n```json\n" + `{
		"title": " Balcony Tomatoes in Ten Steps ",
		"content": "<h2>Intro</h2><p>Grow them <script>alert(1)</script>well.</p>",
		"excerpt": "A short guide.",
		"seoTitle": "",
		"seoDescription": "How to grow tomatoes on a balcony.",
		"keywords": ["Balcony Garden", "tomatoes", "balcony garden", " "]
	}` + "\n```"}
	p := NewLLMProvider(models.AIProviderOpenAI, llm)

	content, err := p.Generate(context.Background(), "Balcony tomatoes", testConfig())
	require.NoError(t, err)

	assert.Equal(t, "Balcony Tomatoes in Ten Steps", content.Title)
	assert.Equal(t, content.Title, content.SEOTitle)
	assert.Contains(t, content.Content, "<h2>Intro</h2>")
	assert.NotContains(t, content.Content, "script")
	assert.Equal(t, []string{"balcony garden", "tomatoes"}, content.Keywords)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], `"Balcony tomatoes"`)
	assert.Contains(t, llm.prompts[0], "Niche: urban gardening")
	assert.Contains(t, llm.prompts[0], "Focus keywords: balcony garden")
}

func TestLLMProviderGenerateMalformed(t *testing.T) {
	p := NewLLMProvider(models.AIProviderAnthropic, &fakeLLM{reply: "I cannot help with that."})

	_, err := p.Generate(context.Background(), "topic", testConfig())
	assert.ErrorIs(t, err, errs.ErrMalformedResponse)

	p = NewLLMProvider(models.AIProviderAnthropic, &fakeLLM{reply: `{"title": "", "content": ""}`})
	_, err = p.Generate(context.Background(), "topic", testConfig())
	assert.ErrorIs(t, err, errs.ErrMalformedResponse)
}

func TestLLMProviderGenerateUpstreamFailure(t *testing.T) {
	cause := errors.New("connection reset by peer")
	p := NewLLMProvider(models.AIProviderOpenAI, &fakeLLM{err: cause})

	_, err := p.Generate(context.Background(), "topic", testConfig())
	assert.ErrorIs(t, err, errs.ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestLLMProviderGenerateTopics(t *testing.T) {
	llm := &fakeLLM{reply: `["Composting on a balcony", "", "Composting on a balcony", " \"Herbs that survive winter\" "]`}
	p := NewLLMProvider(models.AIProviderOpenAI, llm)

	topics, err := p.GenerateTopics(context.Background(), testConfig(), []string{"Old title"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Composting on a balcony", "Herbs that survive winter"}, topics)
	assert.Contains(t, llm.prompts[0], "- Old title")
	assert.Contains(t, llm.prompts[0], "Suggest 5")
}

func TestProviderRegistryDispatch(t *testing.T) {
	openaiLLM := &fakeLLM{reply: `{"title": "From OpenAI", "content": "<p>a</p>"}`}
	anthropicLLM := &fakeLLM{reply: `{"title": "From Anthropic", "content": "<p>b</p>"}`}
	registry := NewProviderRegistry(models.AIProviderOpenAI,
		NewLLMProvider(models.AIProviderOpenAI, openaiLLM),
		NewLLMProvider(models.AIProviderAnthropic, anthropicLLM),
	)

	cfg := testConfig()
	cfg.AIProvider = models.AIProviderAnthropic
	content, err := registry.Generate(context.Background(), "topic", cfg)
	require.NoError(t, err)
	assert.Equal(t, "From Anthropic", content.Title)

	cfg.AIProvider = ""
	content, err = registry.Generate(context.Background(), "topic", cfg)
	require.NoError(t, err)
	assert.Equal(t, "From OpenAI", content.Title)
}

func TestProviderRegistryFallsBackToAvailableProvider(t *testing.T) {
	registry := NewProviderRegistry(models.AIProviderOpenAI,
		NewLLMProvider(models.AIProviderAnthropic, &fakeLLM{reply: `{"title": "A", "content": "<p>b</p>"}`}),
	)

	p, err := registry.For(testConfig())
	require.NoError(t, err)
	assert.Equal(t, models.AIProviderAnthropic, p.Name())

	_, err = NewProviderRegistry(models.AIProviderOpenAI).For(nil)
	assert.True(t, errs.IsConfigMissingError(err))
}
