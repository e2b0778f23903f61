package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// maxRetries bounds how many times a transient completion failure is
// re-sent before the turn gives up.
const maxRetries = 3

// httpStatusError carries a non-2xx upstream status through the retry loop.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

// transientStatus reports whether an upstream status is worth retrying:
// server-side failures and rate limiting, never client errors.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// backoffDelay returns the wait before retry attempt n: n squared seconds
// plus a random jitter of up to half that.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(attempt*attempt) * time.Second
	return base + time.Duration(rand.Int64N(int64(base/2+1)))
}

// sendWithRetry issues the request built by buildReq, re-sending on network
// errors and transient upstream statuses. The request body is rebuilt per
// attempt. Context cancellation interrupts the backoff wait.
func sendWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			logger.Warn("retrying completion request",
				"attempt", attempt+1, "backoff", delay, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if transientStatus(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = &httpStatusError{status: resp.StatusCode, body: string(body)}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}
