package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakewatch/thermal-service/internal/http/ratelimit"
)

func testConfig() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: 0, MaxRetries: 2, InitialBackoffMs: 1, MaxBackoffMs: 5}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body), "body is replayed on retry")
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(testConfig())
	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{"a":1}`)})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoFailsFastOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "task not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig()).Get(context.Background(), srv.URL)
	var fre *ratelimit.FetchRetryError
	require.True(t, errors.As(err, &fre))
	assert.Equal(t, http.StatusNotFound, fre.LastStatus)
	assert.False(t, fre.Retryable())
	assert.Contains(t, err.Error(), "task not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig()).Get(context.Background(), srv.URL)
	var fre *ratelimit.FetchRetryError
	require.True(t, errors.As(err, &fre))
	assert.Equal(t, 3, fre.Attempts)
	assert.True(t, fre.Retryable())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(testConfig()).Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetBytesAndSha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("abc"))
	}))
	defer srv.Close()

	data, err := NewClientDefault().GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", ComputeSha256(data))
}
