package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livetrader/internal/infrastructure/health"
	"livetrader/internal/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Routes(t *testing.T) {
	hm := health.NewManager(nil)
	hm.Register("loop", func() error { return nil })

	s := NewServer(0, &mock.NopLogger{},
		WithHealth(hm),
		WithStatus(func() interface{} { return map[string]string{"state": "running"} }),
	)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for path, want := range map[string]string{
		"/healthz": `"healthy":true`,
		"/status":  `"state":"running"`,
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RunStopsWithContext(t *testing.T) {
	s := NewServer(0, &mock.NopLogger{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
