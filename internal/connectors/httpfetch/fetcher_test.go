package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{Timeout: 2 * time.Second, Retries: 2, RateLimit: 1000}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("RXNO\n1\n"))
	}))
	defer srv.Close()

	body, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL+"/export.csv")
	require.NoError(t, err)
	assert.Equal(t, "RXNO\n1\n", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(testOptions(), nil).Fetch(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=404")
}

func TestFetchSelfSignedTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Retries = 0
	_, err := New(opts, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	opts.InsecureTLS = true
	body, err := New(opts, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestFetchSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.MaxBytes = 10
	_, err := New(opts, nil).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1)
	require.NoError(t, rl.WaitTurn(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.WaitTurn(ctx), context.Canceled)
}
