package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/version"
)

// Client is a JSON HTTP client with bounded retries for transient failures.
// Non-idempotent submissions must be sent with retries disabled by the caller;
// ambiguous failures are surfaced, never silently retried.
type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.CLIName + "/" + version.Version,
	}
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, retryable bool, out any) error {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	retries := c.retries
	if !retryable {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			lastErr = mapNetError(err)
			if attempt < retries {
				continue
			}
			return lastErr
		}

		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return clierr.Wrap(clierr.CodeUnavailable, "read relay response", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = clierr.New(clierr.CodeRateLimited, "relay rate limited request")
			if attempt < retries {
				continue
			}
			return lastErr
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return clierr.New(clierr.CodeAuth, "relay authentication failed")
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = clierr.New(clierr.CodeUnavailable, fmt.Sprintf("relay unavailable (status %d)", resp.StatusCode))
			if attempt < retries {
				continue
			}
			return lastErr
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("relay returned unexpected status %d: %s", resp.StatusCode, truncate(buf, 200)))
		}

		if out == nil {
			return nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return clierr.New(clierr.CodeUnavailable, "relay returned empty response")
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return clierr.Wrap(clierr.CodeUnavailable, "decode relay JSON", err)
		}
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return clierr.New(clierr.CodeUnavailable, "request failed")
}

// GetJSON issues a retryable GET.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	return c.DoJSON(ctx, req, true, out)
}

// PostJSON issues a non-retryable POST; the caller owns resubmission policy.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, false, out)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "relay timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "relay request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}

func truncate(buf []byte, n int) string {
	s := string(bytes.TrimSpace(buf))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
