package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog/log"
)

// WordPressStatus is the status the post gets on the WordPress side.
type WordPressStatus string

const (
	WordPressPublish WordPressStatus = "publish"
	WordPressDraft   WordPressStatus = "draft"
)

// Credentials address a WordPress site through an application password.
type Credentials struct {
	URL         string
	Username    string
	AppPassword string
}

// PublishRequest carries the post fields WordPress receives.
type PublishRequest struct {
	Title            string
	Content          string
	Excerpt          string
	FeaturedImageURL string
	CategoryIDs      []int
}

type Publisher interface {
	Publish(ctx context.Context, creds Credentials, req PublishRequest, status WordPressStatus) (string, error)
}

// WordPressPostPayload is the body of POST /wp-json/wp/v2/posts
type WordPressPostPayload struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Excerpt       string `json:"excerpt,omitempty"`
	Status        string `json:"status"`
	Categories    []int  `json:"categories,omitempty"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
}

// WordPressPostResponse represents the response from WordPress when creating a post
type WordPressPostResponse struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

// WordPressMediaResponse represents the response from the media endpoint
type WordPressMediaResponse struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
}

// WordPressErrorResponse represents an error response from the WordPress REST API
type WordPressErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WordPressPublisher creates posts through the WordPress REST API.
type WordPressPublisher struct {
	client *http.Client
}

func NewWordPressPublisher(client *http.Client) *WordPressPublisher {
	return &WordPressPublisher{client: client}
}

// Publish creates the post and returns its WordPress id. The featured image
// is uploaded to the media library first; when that upload fails the post is
// created without one.
func (p *WordPressPublisher) Publish(ctx context.Context, creds Credentials, req PublishRequest, status WordPressStatus) (string, error) {
	base := strings.TrimSuffix(strings.TrimSpace(creds.URL), "/")

	payload := WordPressPostPayload{
		Title:      req.Title,
		Content:    req.Content,
		Excerpt:    req.Excerpt,
		Status:     string(status),
		Categories: req.CategoryIDs,
	}

	if req.FeaturedImageURL != "" {
		mediaID, err := p.uploadMedia(ctx, base, creds, req.FeaturedImageURL, req.Title)
		if err != nil {
			log.Warn().Err(err).Str("site", base).Msg("Featured image upload failed, publishing without it")
		} else {
			payload.FeaturedMedia = mediaID
		}
	}

	var res WordPressPostResponse
	err := requests.URL(base+"/wp-json/wp/v2/posts").
		Client(p.client).
		Method(http.MethodPost).
		UserAgent(userAgent).
		BasicAuth(creds.Username, creds.AppPassword).
		BodyJSON(payload).
		AddValidator(checkStatus("wordpress", wordPressError)).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return "", upstreamError("wordpress", err)
	}
	if res.ID == 0 {
		return "", errs.NewMalformedResponseError("wordpress", fmt.Errorf("response has no post id"))
	}

	log.Info().
		Int("wordpressId", res.ID).
		Str("link", res.Link).
		Str("status", res.Status).
		Msg("Successfully posted to WordPress")
	return strconv.Itoa(res.ID), nil
}

func (p *WordPressPublisher) uploadMedia(ctx context.Context, base string, creds Credentials, imageURL, title string) (int, error) {
	var img bytes.Buffer
	err := requests.URL(imageURL).
		Client(p.client).
		UserAgent(userAgent).
		AddValidator(checkStatus("image-download", nil)).
		ToBytesBuffer(&img).
		Fetch(ctx)
	if err != nil {
		return 0, upstreamError("image-download", err)
	}

	contentType := http.DetectContentType(img.Bytes())
	filename := mediaFilename(imageURL, contentType)

	var res WordPressMediaResponse
	err = requests.URL(base+"/wp-json/wp/v2/media").
		Client(p.client).
		Method(http.MethodPost).
		UserAgent(userAgent).
		BasicAuth(creds.Username, creds.AppPassword).
		ContentType(contentType).
		Header("Content-Disposition", mediaDisposition(filename)).
		BodyBytes(img.Bytes()).
		AddValidator(checkStatus("wordpress", wordPressError)).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return 0, upstreamError("wordpress", err)
	}

	log.Debug().Int("mediaId", res.ID).Str("title", title).Msg("Uploaded featured image")
	return res.ID, nil
}

func mediaFilename(imageURL, contentType string) string {
	name := path.Base(strings.SplitN(imageURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "featured" + imageExt(contentType)
	}
	return name
}

// mediaDisposition quotes or encodes filename as needed.
func mediaDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return `attachment; filename="featured"`
}

func wordPressError(body []byte) string {
	var e WordPressErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		if e.Code != "" {
			return e.Code + ": " + e.Message
		}
		return e.Message
	}
	return ""
}
