package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Third-Party API & LLM Specific Errors
var (
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrUpstreamRejected   = errors.New("upstream request rejected")
	ErrMalformedResponse  = errors.New("malformed upstream response")
)

// Configuration & Environment Errors
var (
	ErrConfigMissing = errors.New("configuration missing")
)

// LLM Service Specific Error Constructors
func NewRateLimitError(service string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusTooManyRequests,
		err:        ErrRateLimitExceeded,
		Details:    fmt.Sprintf("Rate limit exceeded for %s service", service),
		Field:      "rate_limit",
		Cause:      cause,
	}
}

// NewUpstreamError classifies a failed call to a third-party API by the HTTP
// status it answered with. A zero status means the request never got a reply.
func NewUpstreamError(service string, status int, cause error) *ApiErr {
	switch {
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(service, cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ApiErr{
			StatusCode: http.StatusBadGateway,
			err:        ErrInvalidAPIKey,
			Details:    fmt.Sprintf("%s rejected the configured credentials", service),
			Cause:      cause,
		}
	case status == 0 || status >= 500:
		return &ApiErr{
			StatusCode: http.StatusBadGateway,
			err:        ErrServiceUnavailable,
			Details:    fmt.Sprintf("Service %s is unreachable", service),
			Cause:      cause,
		}
	default:
		return &ApiErr{
			StatusCode: http.StatusBadGateway,
			err:        ErrUpstreamRejected,
			Details:    fmt.Sprintf("%s answered with status %d", service, status),
			Cause:      cause,
		}
	}
}

func NewMalformedResponseError(service string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadGateway,
		err:        ErrMalformedResponse,
		Details:    fmt.Sprintf("Could not parse %s response", service),
		Cause:      cause,
	}
}

// Configuration & Environment Error Constructors
func NewConfigError(configName string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusInternalServerError,
		err:        ErrConfigMissing,
		Details:    fmt.Sprintf("Configuration error for %s", configName),
		Field:      configName,
	}
}

func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

func IsConfigMissingError(err error) bool {
	return errors.Is(err, ErrConfigMissing)
}
