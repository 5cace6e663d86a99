package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	opts := DefaultOptions("test")
	opts.BreakerFailures, opts.BreakerWindow = 50, 100
	return opts
}

func TestHttpClient_RetriesReads(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil, fastOptions())
	body, err := client.Get(context.Background(), "/", map[string]string{"market": "BTC-PERP"})
	require.NoError(t, err)
	assert.Equal(t, "success", string(body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHttpClient_WritesAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil, fastOptions())
	_, err := client.Post(context.Background(), "/orders", map[string]string{"side": "buy"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHttpClient_ClientErrorReturnsAPIError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"market not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, nil, fastOptions())
	_, err := client.Get(context.Background(), "/ticker", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, string(apiErr.Body), "market not found")
	assert.Equal(t, int32(1), attempts.Load(), "4xx must not be retried")
}

type headerSigner struct {
	body string
}

func (s *headerSigner) SignRequest(req *http.Request) error {
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return err
		}
		b, _ := io.ReadAll(rc)
		s.body = string(b)
	}
	req.Header.Set("X-API-Key", "k")
	return nil
}

func TestHttpClient_PatchSignsAndSendsJSON(t *testing.T) {
	var gotMethod, gotKey, gotType string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	signer := &headerSigner{}
	client := NewClient(server.URL, 5*time.Second, signer, fastOptions())
	_, err := client.Patch(context.Background(), "/runtimes/abc", map[string]string{"status": "stopped"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "stopped", gotBody["status"])
	assert.JSONEq(t, `{"status":"stopped"}`, signer.body)
}

func TestHttpClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	opts := fastOptions()
	opts.MaxRetries = 0
	client := NewClient(server.URL, 50*time.Millisecond, nil, opts)

	start := time.Now()
	_, err := client.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
