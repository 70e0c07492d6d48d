// ABOUTME: Adapter is the default syncx.NetworkAdapter, a net/http client
// ABOUTME: self-throttled with golang.org/x/time/rate and an online flag.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mirasync/syncengine/syncx"
)

// RateConfig bounds outbound request rate, mirroring the server-side
// per-user limiter the teacher runs but applied client-side per adapter.
type RateConfig struct {
	Interval time.Duration
	Burst    int
}

// DefaultRateConfig allows ~100 req/min with a burst of 10.
func DefaultRateConfig() RateConfig {
	return RateConfig{Interval: 600 * time.Millisecond, Burst: 10}
}

// Adapter implements syncx.NetworkAdapter over net/http.
type Adapter struct {
	hc      *http.Client
	limiter *rate.Limiter

	mu             sync.RWMutex
	baseURL        string
	defaultHeaders map[string]string

	online atomic.Bool

	subMu sync.Mutex
	subs  []chan bool
}

// New builds an Adapter with the given rate limit; call Initialize before use.
func New(rc RateConfig) *Adapter {
	return &Adapter{
		hc:      &http.Client{},
		limiter: rate.NewLimiter(rate.Every(rc.Interval), rc.Burst),
	}
}

func (a *Adapter) Initialize(ctx context.Context, baseURL string, defaultHeaders map[string]string, timeoutMS int64) error {
	if timeoutMS <= 0 {
		timeoutMS = 15000
	}
	a.mu.Lock()
	a.baseURL = baseURL
	a.defaultHeaders = defaultHeaders
	a.hc.Timeout = time.Duration(timeoutMS) * time.Millisecond
	a.mu.Unlock()

	online := a.TestConnection(ctx, baseURL)
	a.setOnline(online)
	return nil
}

func (a *Adapter) Get(ctx context.Context, path string) (syncx.Response, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

func (a *Adapter) Post(ctx context.Context, path string, data any) (syncx.Response, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

func (a *Adapter) Put(ctx context.Context, path string, data any) (syncx.Response, error) {
	return a.do(ctx, http.MethodPut, path, data)
}

func (a *Adapter) Patch(ctx context.Context, path string, data any) (syncx.Response, error) {
	return a.do(ctx, http.MethodPatch, path, data)
}

func (a *Adapter) Delete(ctx context.Context, path string) (syncx.Response, error) {
	return a.do(ctx, http.MethodDelete, path, nil)
}

func (a *Adapter) do(ctx context.Context, method, path string, data any) (syncx.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return syncx.Response{}, err
	}

	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return syncx.Response{}, err
		}
		body = bytes.NewReader(raw)
	}

	a.mu.RLock()
	url := a.baseURL + path
	headers := a.defaultHeaders
	a.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return syncx.Response{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		a.setOnline(false)
		return syncx.Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	a.setOnline(true)

	out := syncx.Response{StatusCode: resp.StatusCode}
	if resp.ContentLength != 0 {
		var decoded any
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil {
			out.Data = decoded
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("httptransport: %s %s: %s", method, path, resp.Status)
	}
	return out, nil
}

func (a *Adapter) IsOnline() bool { return a.online.Load() }

func (a *Adapter) ConnectivityStream() <-chan bool {
	ch := make(chan bool, 1)
	a.subMu.Lock()
	a.subs = append(a.subs, ch)
	a.subMu.Unlock()
	return ch
}

func (a *Adapter) TestConnection(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := a.hc.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}

func (a *Adapter) setOnline(v bool) {
	if a.online.Swap(v) == v {
		return
	}
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- v:
		default:
		}
	}
}
