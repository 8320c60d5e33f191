package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/VanceGC/BlogMagic-sub000/config"
	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const resendBaseURL = "https://api.resend.com"

// Notification is a short operator message about something that needs
// attention, typically a failed publish.
type Notification struct {
	Subject string
	Body    string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NewNotifierFromSettings wires every channel that has credentials. With
// none configured the returned notifier drops messages.
func NewNotifierFromSettings(s config.Settings, client *http.Client) Notifier {
	var channels []Notifier
	if s.ResendAPIKey != "" && s.ResendFromEmail != "" && s.NotifyEmail != "" {
		channels = append(channels, NewResendNotifier(s.ResendAPIKey, s.ResendFromEmail, strings.Split(s.NotifyEmail, ","), client))
	}
	if s.TwilioAccountSID != "" && s.TwilioAuthToken != "" && s.TwilioFrom != "" && s.NotifyPhone != "" {
		channels = append(channels, NewTwilioNotifier(s.TwilioAccountSID, s.TwilioAuthToken, s.TwilioFrom, s.NotifyPhone))
	}

	switch len(channels) {
	case 0:
		log.Info().Msg("No notification channel configured")
		return NoopNotifier{}
	case 1:
		return channels[0]
	}
	return MultiNotifier(channels)
}

// ResendEmailRequest represents the request payload for Resend API
type ResendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Html    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// ResendEmailResponse represents the response from Resend API
type ResendEmailResponse struct {
	ID string `json:"id"`
}

// ResendNotifier sends notifications as e-mail through Resend.
type ResendNotifier struct {
	apiKey     string
	from       string
	recipients []string
	baseURL    string
	client     *http.Client
}

func NewResendNotifier(apiKey, from string, recipients []string, client *http.Client) *ResendNotifier {
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &ResendNotifier{
		apiKey:     apiKey,
		from:       from,
		recipients: to,
		baseURL:    resendBaseURL,
		client:     client,
	}
}

func (n *ResendNotifier) Notify(ctx context.Context, msg Notification) error {
	if len(n.recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	var res ResendEmailResponse
	err := requests.URL(n.baseURL+"/emails").
		Client(n.client).
		Method(http.MethodPost).
		UserAgent(userAgent).
		Bearer(n.apiKey).
		BodyJSON(ResendEmailRequest{
			From:    n.from,
			To:      n.recipients,
			Subject: msg.Subject,
			Text:    msg.Body,
		}).
		AddValidator(checkStatus("resend", resendError)).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return upstreamError("resend", err)
	}

	log.Info().Str("emailId", res.ID).Msg("Successfully sent email via Resend")
	return nil
}

func resendError(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if jsonErr := decodeJSONObject(string(body), &e); jsonErr == nil {
		return e.Message
	}
	return ""
}

type smsSender interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioNotifier sends notifications as SMS.
type TwilioNotifier struct {
	sender smsSender
	from   string
	to     string
}

func NewTwilioNotifier(accountSID, authToken, from, to string) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioNotifier{sender: client.Api, from: from, to: to}
}

func (n *TwilioNotifier) Notify(ctx context.Context, msg Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(smsBody(msg))

	res, err := n.sender.CreateMessage(params)
	if err != nil {
		return upstreamError("twilio", err)
	}
	if res != nil && res.Sid != nil {
		log.Info().Str("sid", *res.Sid).Msg("Successfully sent SMS via Twilio")
	}
	return nil
}

// smsBody keeps the text within a single 160 character segment.
func smsBody(msg Notification) string {
	text := msg.Subject
	if msg.Body != "" {
		text += ": " + msg.Body
	}
	if r := []rune(text); len(r) > 160 {
		text = string(r[:157]) + "..."
	}
	return text
}

// MultiNotifier delivers to every channel. A failing channel does not stop
// the others; the failures are returned together.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, msg Notification) error {
	var failures []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to send notification")
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Notification) error {
	return nil
}
