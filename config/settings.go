package config

import "time"

// Settings is the typed view of the environment that the scheduler, the
// publication runner and the outbound services are constructed with.
type Settings struct {
	Port            string
	AcceptedOrigins []string
	JWTSecret       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration

	LogLevel  string
	LogPretty bool

	DatabaseDSN        string
	DatabaseReplicaDSN string

	AIProvider      string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	PerplexityKey   string

	ImageProvider   string
	OpenAIImageSize string
	StabilityAPIKey string

	AWSRegion string
	S3Bucket  string
	S3BaseURL string

	ResendAPIKey    string
	ResendFromEmail string
	NotifyEmail     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	NotifyPhone      string

	ScheduleTargetCount int
	DefaultTimezone     string
	SweepInterval       time.Duration
	PublishConcurrency  int
	FillRetryBackoff    time.Duration
	HTTPTimeout         time.Duration
}

// Load builds Settings from an environment map, applying defaults.
func Load(c map[string]string) Settings {
	return Settings{
		Port:            GetString(c, "PORT", "8080"),
		AcceptedOrigins: GetList(c, "ACCEPTED_ORIGINS"),
		JWTSecret:       GetString(c, "JWT_SECRET", ""),
		ReadTimeout:     GetSeconds(c, "READ_TIMEOUT_SECONDS", 180),
		WriteTimeout:    GetSeconds(c, "WRITE_TIMEOUT_SECONDS", 180),
		IdleTimeout:     GetSeconds(c, "IDLE_TIMEOUT_SECONDS", 180),

		LogLevel:  GetString(c, "LOG_LEVEL", "info"),
		LogPretty: GetBool(c, "LOG_PRETTY", false),

		DatabaseDSN:        GetString(c, "DATABASE_URL", ""),
		DatabaseReplicaDSN: GetString(c, "DB_REPLICA_DSN", ""),

		AIProvider:      GetString(c, "AI_PROVIDER", "openai"),
		OpenAIAPIKey:    GetString(c, "OPENAI_API_KEY", ""),
		OpenAIModel:     GetString(c, "OPENAI_MODEL", "gpt-4o"),
		AnthropicAPIKey: GetString(c, "ANTHROPIC_API_KEY", ""),
		AnthropicModel:  GetString(c, "ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		PerplexityKey:   GetString(c, "PERPLEXITY_API_KEY", ""),

		ImageProvider:   GetString(c, "IMAGE_PROVIDER", "openai"),
		OpenAIImageSize: GetString(c, "OPENAI_IMAGE_SIZE", "1792x1024"),
		StabilityAPIKey: GetString(c, "STABILITY_API_KEY", ""),

		AWSRegion: GetString(c, "AWS_REGION", "us-east-1"),
		S3Bucket:  GetString(c, "S3_BUCKET", ""),
		S3BaseURL: GetString(c, "S3_PUBLIC_BASE_URL", ""),

		ResendAPIKey:    GetString(c, "RESEND_API_KEY", ""),
		ResendFromEmail: GetString(c, "RESEND_FROM_EMAIL", ""),
		NotifyEmail:     GetString(c, "NOTIFY_EMAIL", ""),

		TwilioAccountSID: GetString(c, "TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  GetString(c, "TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       GetString(c, "TWILIO_FROM", ""),
		NotifyPhone:      GetString(c, "NOTIFY_PHONE", ""),

		ScheduleTargetCount: GetInt(c, "SCHEDULE_TARGET_COUNT", 3),
		DefaultTimezone:     GetString(c, "DEFAULT_TIMEZONE", "UTC"),
		SweepInterval:       GetSeconds(c, "SWEEP_INTERVAL_SECONDS", 60),
		PublishConcurrency:  GetInt(c, "PUBLISH_CONCURRENCY", 4),
		FillRetryBackoff:    GetSeconds(c, "FILL_RETRY_BACKOFF_SECONDS", 900),
		HTTPTimeout:         GetSeconds(c, "HTTP_TIMEOUT_SECONDS", 120),
	}
}
