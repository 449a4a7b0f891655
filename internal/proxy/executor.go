package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/auth"
	"github.com/aegisgw/admission-gateway/internal/config"
)

// Result is the upstream outcome of one proxied request.
type Result struct {
	StatusCode   int
	Body         []byte
	Header       http.Header
	AttemptsUsed int
	Duration     time.Duration
}

// Target describes where a request is forwarded.
type Target struct {
	Provider adapters.Provider
	BaseURL  string
}

// Executor forwards request bodies upstream with retries and breaker checks.
type Executor struct {
	client   *http.Client
	auth     *auth.Registry
	breakers *BreakerRegistry
	timeout  time.Duration
}

// NewExecutor creates an executor. timeout bounds the whole attempt sequence
// for one request, including backoff waits.
func NewExecutor(client *http.Client, authReg *auth.Registry, breakers *BreakerRegistry, timeout time.Duration) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return &Executor{client: client, auth: authReg, breakers: breakers, timeout: timeout}
}

// Execute forwards body to target, retrying transient failures per retryCfg.
// The circuit breaker for the target provider is consulted before the first
// attempt and fed the final outcome.
func (e *Executor) Execute(ctx context.Context, target Target, path string, header http.Header, body []byte, retryCfg RetryConfig) (*Result, error) {
	breaker := e.breakers.Get(target.Provider)
	if err := breaker.Allow(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	var lastResult *Result

	for attempt := 0; attempt <= retryCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryCfg.Delay(attempt - 1)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("provider", string(target.Provider)).
				Msg("proxy: retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				breaker.RecordFailure()
				return nil, fmt.Errorf("request deadline exceeded during backoff: %w", ctx.Err())
			}
		}

		result, err := e.attempt(ctx, target, path, header, body)
		if err != nil {
			lastErr = err
			lastResult = nil
			if ctx.Err() != nil {
				break
			}
			continue
		}

		result.AttemptsUsed = attempt + 1
		result.Duration = time.Since(start)

		if !retryableStatus(result.StatusCode) {
			// Success, or a terminal client error the provider will keep
			// returning. Rate limits (429) are the retryable exception and
			// never reach this branch.
			if result.StatusCode < 500 {
				breaker.RecordSuccess()
			}
			return result, nil
		}
		lastResult = result
		lastErr = nil
	}

	breaker.RecordFailure()

	if lastResult != nil {
		lastResult.Duration = time.Since(start)
		return lastResult, nil
	}
	return nil, fmt.Errorf("provider %s unreachable after %d attempts: %w", target.Provider, retryCfg.MaxRetries+1, lastErr)
}

func (e *Executor) attempt(ctx context.Context, target Target, path string, header http.Header, body []byte) (*Result, error) {
	url := strings.TrimRight(target.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	copyForwardableHeaders(req.Header, header)
	req.Header.Set("Content-Type", "application/json")

	handler := e.auth.GetOrDefault(target.Provider)
	if err := handler.Apply(ctx, req, body); err != nil {
		return nil, fmt.Errorf("apply %s credentials: %w", handler.Name(), err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("provider", string(target.Provider)).
			Str("body", truncateForLog(respBody)).
			Msg("proxy: upstream error")
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Header:     resp.Header.Clone(),
	}, nil
}

// retryableStatus reports whether a status code is worth another attempt.
// Rate limits and server errors are transient; other client errors are
// terminal.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// copyForwardableHeaders copies the caller's headers upstream, dropping
// hop-by-hop headers and the gateway's own control headers.
func copyForwardableHeaders(dst, src http.Header) {
	for name, values := range src {
		if skipHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// controlHeaders are consumed by the gateway and never forwarded upstream.
var controlHeaders = map[string]bool{
	"X-Target-Provider":           true,
	"X-User-Id":                   true,
	"X-Workspace-Id":              true,
	"X-Budget-Id":                 true,
	"X-Model-Override":            true,
	"X-Disable-Semantic-Cache":    true,
	"X-Output-Moderation-Enabled": true,
	"X-Toxicity-Threshold":        true,
	"X-Moderation-Action":         true,
	"X-Retry-Count":               true,
	"X-Retry-Factor":              true,
	"X-Retry-Min-Timeout":         true,
	"X-Retry-Max-Timeout":         true,
}

func skipHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailer", "Transfer-Encoding", "Upgrade",
		"Host", "Content-Length", "Accept-Encoding":
		return true
	}
	return controlHeaders[http.CanonicalHeaderKey(name)]
}

func truncateForLog(body []byte) string {
	if len(body) > config.MaxErrorBodyLogLen {
		return string(body[:config.MaxErrorBodyLogLen]) + "..."
	}
	return string(body)
}
