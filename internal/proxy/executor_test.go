package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/auth"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		Factor:     2.0,
		MinTimeout: time.Millisecond,
		MaxTimeout: 5 * time.Millisecond,
	}
}

func newTestExecutor() *Executor {
	return NewExecutor(nil, auth.NewRegistry(), NewBreakerRegistry(5, time.Minute), 10*time.Second)
}

func TestExecute_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := newTestExecutor()
	result, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(3))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 1, result.AttemptsUsed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	// Three 503s, then a 200: four attempts total.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := newTestExecutor()
	result, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(3))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 4, result.AttemptsUsed)
}

func TestExecute_ExhaustsRetriesReturnsLastStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newTestExecutor()
	result, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(2))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, 3, result.AttemptsUsed)
}

func TestExecute_TerminalClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := newTestExecutor()
	result, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(3))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_RateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := newTestExecutor()
	result, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(3))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 2, result.AttemptsUsed)
}

func TestExecute_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breakers := NewBreakerRegistry(5, time.Minute)
	e := NewExecutor(nil, auth.NewRegistry(), breakers, 10*time.Second)
	target := Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL}

	// Each exhausted request records one breaker failure.
	for i := 0; i < 5; i++ {
		_, err := e.Execute(context.Background(), target, "/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(0))
		require.NoError(t, err)
	}

	// Circuit is now open: rejected without contacting the provider.
	_, err := e.Execute(context.Background(), target, "/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(0))
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
}

func TestExecute_ForwardsCallerHeadersStripsControlHeaders(t *testing.T) {
	var gotAuth, gotControl, gotConn string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotControl = r.Header.Get("X-Budget-Id")
		gotConn = r.Header.Get("Keep-Alive")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer sk-caller")
	header.Set("X-Budget-Id", "b1")
	header.Set("Keep-Alive", "timeout=5")

	e := newTestExecutor()
	_, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", header, []byte(`{}`), fastRetryConfig(0))
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-caller", gotAuth)
	assert.Empty(t, gotControl)
	assert.Empty(t, gotConn)
}

func TestExecute_UnreachableProviderReturnsError(t *testing.T) {
	e := newTestExecutor()
	_, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: "http://127.0.0.1:1"},
		"/v1/chat/completions", nil, []byte(`{}`), fastRetryConfig(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable after 2 attempts")
}

func TestExecute_DeadlineBoundsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewExecutor(nil, auth.NewRegistry(), NewBreakerRegistry(100, time.Minute), 50*time.Millisecond)
	slow := RetryConfig{MaxRetries: 10, Factor: 2.0, MinTimeout: time.Second, MaxTimeout: 10 * time.Second}

	start := time.Now()
	_, err := e.Execute(context.Background(), Target{Provider: adapters.ProviderOpenAI, BaseURL: srv.URL},
		"/v1/chat/completions", nil, []byte(`{}`), slow)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
