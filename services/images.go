package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	openAIBaseURL    = "https://api.openai.com"
	stabilityBaseURL = "https://api.stability.ai"
	stabilityEngine  = "stable-diffusion-xl-1024-v1-0"
)

// ImageGenerator produces a featured image for a post and returns a URL to it.
type ImageGenerator interface {
	Generate(ctx context.Context, title, body string) (string, error)
}

// ImageStore persists image bytes and returns their public URL.
type ImageStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// TryGenerateImage runs gen and reports whether an image was produced. A
// failure is logged and never returned: a post without an image is still a
// post.
func TryGenerateImage(ctx context.Context, gen ImageGenerator, title, body string) (string, bool) {
	if gen == nil {
		return "", false
	}
	url, err := gen.Generate(ctx, title, body)
	if err != nil {
		log.Warn().
			Err(errs.NewImageGenerationError(err)).
			Str("title", title).
			Msg("Image generation failed, continuing without featured image")
		return "", false
	}
	if url == "" {
		return "", false
	}
	return url, true
}

func imagePrompt(title, body string) string {
	summary := lo.Substring(PlainText(body), 0, 300)
	return fmt.Sprintf("A clean, modern editorial illustration for a blog post titled %q. %s No text, letters or watermarks in the image.",
		title, summary)
}

type openAIImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type openAIImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// OpenAIImageGenerator uses the OpenAI images API (DALL-E 3).
type OpenAIImageGenerator struct {
	apiKey  string
	size    string
	baseURL string
	client  *http.Client
}

func NewOpenAIImageGenerator(apiKey, size string, client *http.Client) *OpenAIImageGenerator {
	return &OpenAIImageGenerator{
		apiKey:  apiKey,
		size:    size,
		baseURL: openAIBaseURL,
		client:  client,
	}
}

func (g *OpenAIImageGenerator) Generate(ctx context.Context, title, body string) (string, error) {
	var res openAIImageResponse
	err := requests.URL(g.baseURL+"/v1/images/generations").
		Client(g.client).
		Method(http.MethodPost).
		UserAgent(userAgent).
		Bearer(g.apiKey).
		BodyJSON(openAIImageRequest{
			Model:  "dall-e-3",
			Prompt: imagePrompt(title, body),
			N:      1,
			Size:   g.size,
		}).
		AddValidator(checkStatus("openai-images", errorEnvelope)).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return "", upstreamError("openai-images", err)
	}
	if len(res.Data) == 0 || res.Data[0].URL == "" {
		return "", errs.NewMalformedResponseError("openai-images", fmt.Errorf("no image url"))
	}
	return res.Data[0].URL, nil
}

type stabilityRequest struct {
	TextPrompts []stabilityPrompt `json:"text_prompts"`
	CfgScale    int               `json:"cfg_scale"`
	Height      int               `json:"height"`
	Width       int               `json:"width"`
	Samples     int               `json:"samples"`
	Steps       int               `json:"steps"`
}

type stabilityPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type stabilityResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// StabilityImageGenerator uses Stability AI's SDXL endpoint. Stability
// answers with raw image bytes, so a store is required to get a URL.
type StabilityImageGenerator struct {
	apiKey  string
	baseURL string
	client  *http.Client
	store   ImageStore
}

func NewStabilityImageGenerator(apiKey string, store ImageStore, client *http.Client) *StabilityImageGenerator {
	return &StabilityImageGenerator{
		apiKey:  apiKey,
		baseURL: stabilityBaseURL,
		client:  client,
		store:   store,
	}
}

func (g *StabilityImageGenerator) Generate(ctx context.Context, title, body string) (string, error) {
	if g.store == nil {
		return "", errs.NewConfigError("S3_BUCKET")
	}

	var res stabilityResponse
	err := requests.URL(g.baseURL+"/v1/generation/"+stabilityEngine+"/text-to-image").
		Client(g.client).
		Method(http.MethodPost).
		UserAgent(userAgent).
		Bearer(g.apiKey).
		Accept("application/json").
		BodyJSON(stabilityRequest{
			TextPrompts: []stabilityPrompt{{Text: imagePrompt(title, body), Weight: 1}},
			CfgScale:    7,
			Height:      768,
			Width:       1344,
			Samples:     1,
			Steps:       30,
		}).
		AddValidator(checkStatus("stability", nil)).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return "", upstreamError("stability", err)
	}
	if len(res.Artifacts) == 0 {
		return "", errs.NewMalformedResponseError("stability", fmt.Errorf("no artifacts"))
	}
	if reason := res.Artifacts[0].FinishReason; reason != "" && reason != "SUCCESS" {
		return "", errs.NewMalformedResponseError("stability", fmt.Errorf("finish reason %s", reason))
	}

	data, err := base64.StdEncoding.DecodeString(res.Artifacts[0].Base64)
	if err != nil {
		return "", errs.NewMalformedResponseError("stability", err)
	}
	return g.store.Store(ctx, imageKey("image/png"), data, "image/png")
}

// RehostingImageGenerator copies images of a generator that hands out
// short-lived URLs into a permanent store.
type RehostingImageGenerator struct {
	next   ImageGenerator
	store  ImageStore
	client *http.Client
}

func NewRehostingImageGenerator(next ImageGenerator, store ImageStore, client *http.Client) *RehostingImageGenerator {
	return &RehostingImageGenerator{next: next, store: store, client: client}
}

func (g *RehostingImageGenerator) Generate(ctx context.Context, title, body string) (string, error) {
	url, err := g.next.Generate(ctx, title, body)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = requests.URL(url).
		Client(g.client).
		UserAgent(userAgent).
		AddValidator(checkStatus("image-download", nil)).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return "", upstreamError("image-download", err)
	}

	contentType := http.DetectContentType(buf.Bytes())
	if !strings.HasPrefix(contentType, "image/") {
		return "", errs.NewMalformedResponseError("image-download", fmt.Errorf("unexpected content type %s", contentType))
	}
	return g.store.Store(ctx, imageKey(contentType), buf.Bytes(), contentType)
}

func imageKey(contentType string) string {
	return "featured/" + uuid.NewString() + imageExt(contentType)
}

func imageExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".png"
}
