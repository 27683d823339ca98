// Package httpfetch downloads nightly export files over HTTP(S) with retries
// and a shared request rate limit.
package httpfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type Options struct {
	Timeout     time.Duration
	Retries     int
	RateLimit   int
	InsecureTLS bool
	// MaxBytes caps a single download; zero means 256 MiB.
	MaxBytes int64
}

type Fetcher struct {
	client   *retryablehttp.Client
	limiter  *RateLimiter
	maxBytes int64
}

func New(opts Options, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = retryLogger{log: log.Named("httpfetch")}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	if opts.InsecureTLS {
		if tr, ok := client.HTTPClient.Transport.(*http.Transport); ok {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // FETCH_INSECURE_TLS
		}
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	return &Fetcher{client: client, limiter: NewRateLimiter(opts.RateLimit), maxBytes: maxBytes}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.WaitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("response larger than %d bytes", f.maxBytes)
	}
	return body, nil
}

// retryLogger routes retryablehttp's leveled logging to zap.
type retryLogger struct {
	log *zap.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.log.Sugar().Errorw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.log.Sugar().Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.log.Sugar().Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.log.Sugar().Warnw(msg, kv...) }
