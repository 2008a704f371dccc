package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// RetryConfig holds retry configuration. MaxRetries of 0 sends each request once.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// shouldRetry determines if a status code is retryable
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff calculates exponential backoff duration
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// retryWithBackoff runs reqFunc until it succeeds, fails permanently, or retries run out.
// Non-retryable responses are returned as-is for the caller to report.
func (c *Client) retryWithBackoff(ctx context.Context, reqFunc func() (*http.Response, error)) (*http.Response, error) {
	config := c.retry
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := reqFunc()
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			if !shouldRetry(resp.StatusCode) || attempt == config.MaxRetries {
				return resp, nil
			}
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
