package services

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VanceGC/BlogMagic-sub000/errs"
	"github.com/carlmjohnson/requests"
)

const userAgent = "BlogMagic/1.0 (+https://github.com/VanceGC/BlogMagic-sub000)"

// NewHTTPClient returns the client shared by every outbound integration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// checkStatus accepts 2xx answers and turns anything else into an upstream
// error carrying the status code. detail extracts a readable message from the
// error body; when it returns "" the raw body is used.
func checkStatus(service string, detail func(body []byte) string) requests.ResponseHandler {
	return func(res *http.Response) error {
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		msg := ""
		if detail != nil {
			msg = detail(body)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return errs.NewUpstreamError(service, res.StatusCode, fmt.Errorf("%s returned status %d: %s", service, res.StatusCode, msg))
	}
}

// upstreamError classifies transport failures that happened before any
// status code was seen.
func upstreamError(service string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *errs.ApiErr
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return errs.NewUpstreamError(service, 0, err)
}
