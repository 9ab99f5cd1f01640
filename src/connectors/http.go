package connectors

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	retryAttempts   = 3
	retryBaseDelay  = 300 * time.Millisecond
	retryMaxBackoff = 3 * time.Second
)

// retryable retries transport errors, 5xx, 429 and 408.
func retryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	switch code := r.StatusCode(); {
	case code >= http.StatusInternalServerError && code <= 599:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

// newRestyClient makes a single attempt per request. Signals go through it
// because a replayed BUY/SELL opens the exposure again.
func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	if strings.TrimSpace(baseURL) == "" {
		logger.Warn("No base URL provided for resty client")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// newRetryingRestyClient is for idempotent reads such as the venue position lookup.
func newRetryingRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return newRestyClient(baseURL, timeout).
		SetRetryCount(retryAttempts-1).
		SetRetryWaitTime(retryBaseDelay).
		SetRetryMaxWaitTime(retryMaxBackoff).
		AddRetryCondition(retryable)
}
